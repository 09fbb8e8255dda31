package agent

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/llm"
	"github.com/ARIHARAN-KC/nexa/internal/prompt"
	"github.com/ARIHARAN-KC/nexa/internal/stage"
)

// CodeFile is one generated file. The JSON names match the download API.
type CodeFile struct {
	Path    string `json:"file"`
	Content string `json:"code"`
}

// Coder writes the project files.
type Coder struct {
	client  llm.Client
	opts    Options
	guesser DirectoryGuesser
}

// NewCoder builds the code generation stage. A nil guesser means
// DefaultGuesser.
func NewCoder(client llm.Client, opts Options, guesser DirectoryGuesser) *Coder {
	if guesser == nil {
		guesser = DefaultGuesser
	}
	return &Coder{client: client, opts: opts, guesser: guesser}
}

// Run generates files for the plan excerpt. A reply that yields no files or
// misses a page the user asked for is retried. When attempts run out the
// last non-empty file set is returned without error; if no attempt produced
// any file the result is empty.
func (c *Coder) Run(ctx context.Context, planExcerpt, userPrompt string, searchResults any) ([]CodeFile, error) {
	rendered, err := c.opts.prompts().Render(prompt.Coder, prompt.Vars{
		"step_by_step_plan": planExcerpt,
		"user_prompt":       userPrompt,
		"search_results":    searchContext(searchResults),
	})
	if err != nil {
		return nil, err
	}
	pages := RequestedPages(userPrompt)
	log := c.opts.logger()

	var lastNonEmpty []CodeFile
	opts := stageOpts[[]CodeFile](c.opts, "coder", CoderAttempts)
	opts.AcceptLast = func([]CodeFile) bool { return true }

	res, err := stage.Run(ctx, opts, func(ctx context.Context, attempt int) ([]CodeFile, error) {
		reply, err := c.client.Infer(ctx, rendered)
		if err != nil {
			return nil, err
		}
		files := ParseCodeFiles(reply, c.guesser)
		if len(files) == 0 {
			return lastNonEmpty, stage.Malformed("coder reply contained no files")
		}
		lastNonEmpty = files
		if missing := MissingPages(pages, files); len(missing) > 0 {
			log.Info("generated files miss requested pages",
				zap.Int("attempt", attempt),
				zap.Strings("missing", missing))
			return files, stage.Malformed("missing pages: %s", strings.Join(missing, ", "))
		}
		return files, nil
	})
	if err != nil {
		return nil, err
	}
	if res.Value == nil {
		return []CodeFile{}, nil
	}
	return res.Value, nil
}

// searchContext renders retrieval results for the prompt; empty results
// render as "".
func searchContext(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	s := string(b)
	if s == "null" || s == "{}" || s == "[]" {
		return ""
	}
	return s
}

// ParseCodeFiles scans a coder reply. A file marker line flushes the open
// file and opens a new one. A fenced block is captured verbatim into the open
// file; with no file open it is discarded. Other non-blank lines are appended
// while a file is open. Bodies are trimmed and empty entries dropped.
func ParseCodeFiles(reply string, g DirectoryGuesser) []CodeFile {
	var (
		out     []CodeFile
		current string
		open    bool
		body    []string
	)
	flush := func() {
		if open && len(body) > 0 {
			path := NormalizePathWith(current, g)
			content := strings.TrimSpace(strings.Join(body, "\n"))
			if path != "" && content != "" {
				out = append(out, CodeFile{Path: path, Content: content})
			}
		}
		body = nil
	}

	lines := strings.Split(reply, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if m := filenameRe.FindStringSubmatch(line); m != nil {
			flush()
			current = strings.TrimSpace(m[1])
			open = true
			continue
		}

		if strings.HasPrefix(line, Fence) {
			var block []string
			for i++; i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), Fence); i++ {
				block = append(block, lines[i])
			}
			if open {
				body = append(body, block...)
			}
			continue
		}

		if open && line != "" {
			body = append(body, line)
		}
	}
	flush()
	return out
}

// pageBuckets maps a page name to the prompt phrases that request it.
var pageBuckets = []struct {
	Page    string
	Phrases []string
}{
	{"home", []string{"home", "landing"}},
	{"login", []string{"login", "signin", "sign in", "sign-in"}},
	{"signup", []string{"signup", "sign up", "register"}},
	{"dashboard", []string{"dashboard"}},
	{"filter", []string{"filter"}},
	{"admin", []string{"admin"}},
	{"settings", []string{"settings", "preferences"}},
}

// RequestedPages returns the page buckets the prompt mentions, in bucket
// order.
func RequestedPages(userPrompt string) []string {
	lower := strings.ToLower(userPrompt)
	var pages []string
	for _, b := range pageBuckets {
		for _, p := range b.Phrases {
			if strings.Contains(lower, p) {
				pages = append(pages, b.Page)
				break
			}
		}
	}
	return pages
}

// MissingPages lists the requested pages that no file path or body mentions,
// in the order given. A page is covered by any phrase of its bucket.
func MissingPages(pages []string, files []CodeFile) []string {
	var haystack strings.Builder
	for _, f := range files {
		haystack.WriteString(strings.ToLower(f.Path))
		haystack.WriteByte('\n')
		haystack.WriteString(strings.ToLower(f.Content))
		haystack.WriteByte('\n')
	}
	text := haystack.String()

	var missing []string
	for _, page := range pages {
		if !pageCovered(page, text) {
			missing = append(missing, page)
		}
	}
	return missing
}

func pageCovered(page, text string) bool {
	for _, b := range pageBuckets {
		if b.Page != page {
			continue
		}
		for _, p := range b.Phrases {
			if strings.Contains(text, p) {
				return true
			}
		}
		return false
	}
	return strings.Contains(text, page)
}
