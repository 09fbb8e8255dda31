package agent

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ARIHARAN-KC/nexa/internal/llm"
	"github.com/ARIHARAN-KC/nexa/internal/prompt"
	"github.com/ARIHARAN-KC/nexa/internal/stage"
)

// Research is the researcher's output. Queries may be empty; AskUser may be
// the empty string.
type Research struct {
	Queries []string `json:"queries"`
	AskUser string   `json:"ask_user"`
}

// MarshalJSON writes nil Queries as an empty array.
func (r Research) MarshalJSON() ([]byte, error) {
	type plain Research
	if r.Queries == nil {
		r.Queries = []string{}
	}
	return json.Marshal(plain(r))
}

// Researcher turns the plan and keywords into search queries.
type Researcher struct {
	client llm.Client
	opts   Options
}

// NewResearcher builds the research stage.
func NewResearcher(client llm.Client, opts Options) *Researcher {
	return &Researcher{client: client, opts: opts}
}

// Run renders the plan excerpt and keywords into the researcher prompt.
func (r *Researcher) Run(ctx context.Context, planExcerpt string, keywords []string) (Research, error) {
	rendered, err := r.opts.prompts().Render(prompt.Researcher, prompt.Vars{
		"step_by_step_plan":   planExcerpt,
		"contextual_keywords": JoinKeywords(keywords),
	})
	if err != nil {
		return Research{}, err
	}

	res, err := stage.Run(ctx, stageOpts[Research](r.opts, "researcher", ResearcherAttempts),
		func(ctx context.Context, _ int) (Research, error) {
			reply, err := r.client.Infer(ctx, rendered)
			if err != nil {
				return Research{}, err
			}
			return ParseResearch(reply)
		})
	if err != nil {
		return Research{}, err
	}
	return res.Value, nil
}

// ParseResearch validates a researcher reply: a JSON object with a queries
// array (null counts as empty) and an ask_user string. Queries are kept as
// written; an empty list parses to nil.
func ParseResearch(reply string) (Research, error) {
	if strings.TrimSpace(reply) == "" {
		return Research{}, stage.Malformed("empty researcher reply")
	}
	obj, ok := decodeObject(reply)
	if !ok {
		return Research{}, stage.Malformed("researcher reply is not a JSON object")
	}

	rawQueries, ok := obj["queries"]
	if !ok {
		return Research{}, stage.Malformed("researcher reply missing queries")
	}
	list, ok := rawQueries.([]any)
	if !ok && rawQueries != nil {
		return Research{}, stage.Malformed("queries must be an array")
	}
	rawAsk, ok := obj["ask_user"]
	if !ok {
		return Research{}, stage.Malformed("researcher reply missing ask_user")
	}
	ask, ok := rawAsk.(string)
	if !ok {
		return Research{}, stage.Malformed("ask_user must be a string")
	}

	out := Research{AskUser: ask}
	for _, q := range list {
		out.Queries = append(out.Queries, stringValue(q))
	}
	return out, nil
}

// JoinKeywords capitalizes each keyword (first letter upper, rest lower) and
// joins them with ", ".
func JoinKeywords(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		parts = append(parts, capitalize(k))
	}
	return strings.Join(parts, ", ")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
