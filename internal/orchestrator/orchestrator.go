// Package orchestrator sequences the generation stages for one request and
// exposes the run as a pull-driven sequence of pipeline events.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/agent"
	"github.com/ARIHARAN-KC/nexa/internal/browser"
	"github.com/ARIHARAN-KC/nexa/internal/keywords"
	"github.com/ARIHARAN-KC/nexa/internal/llm"
	"github.com/ARIHARAN-KC/nexa/internal/logging"
	"github.com/ARIHARAN-KC/nexa/internal/observability"
	"github.com/ARIHARAN-KC/nexa/internal/pipeline"
	"github.com/ARIHARAN-KC/nexa/internal/stage"
	"github.com/ARIHARAN-KC/nexa/internal/storage"
)

// Gateway agent names; they key the token table.
const (
	AgentDecision   = llm.AgentDecisionTaker
	AgentPlanner    = llm.AgentPlanner
	AgentResearcher = llm.AgentResearcher
	AgentCoder      = llm.AgentCoder
	AgentBugFixer   = llm.AgentBugFixer
)

// DefaultProjectName is recorded when the plan names no project.
const DefaultProjectName = "Untitled Project"

// Run outcomes as counted by PipelineRunsTotal.
const (
	OutcomeConversation = "conversation"
	OutcomeProject      = "project"
	OutcomeError        = "error"
	OutcomeAbandoned    = "abandoned"
)

// ConversationStore durably records a run's messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID string, first pipeline.Message) (int64, error)
	AppendMessage(ctx context.Context, conversationID int64, m pipeline.Message) error
	SetProject(ctx context.Context, conversationID int64, name string, plan any) error
}

// KeywordExtractor picks the key concepts of a prompt.
type KeywordExtractor interface {
	Extract(text string, topN int) []string
}

// Deps are the collaborators of an Orchestrator. Router, Store and Retriever
// are required. A nil Keywords uses the built-in extractor, a nil Objects
// skips saving project files, and a nil Guesser means agent.DefaultGuesser.
// RetrievalConcurrency below 1 runs queries one at a time.
type Deps struct {
	Router               llm.Router
	Store                ConversationStore
	Retriever            browser.Retriever
	Keywords             KeywordExtractor
	Objects              storage.Store
	Guesser              agent.DirectoryGuesser
	Agent                agent.Options
	TopN                 int
	RetrievalConcurrency int
	Logger               *zap.Logger
	Metrics              *observability.Metrics
}

// Orchestrator runs the pipeline. It holds no per-run state and is safe for
// concurrent use.
type Orchestrator struct {
	deps     Deps
	logger   *zap.Logger
	progress io.Writer // live progress output; nil = silent
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Keywords == nil {
		deps.Keywords = keywords.New(keywords.DefaultDiversity)
	}
	if deps.TopN <= 0 {
		deps.TopN = keywords.DefaultTopN
	}
	deps.Logger = logging.OrNop(deps.Logger)
	if deps.Agent.Logger == nil {
		deps.Agent.Logger = deps.Logger
	}
	if deps.Agent.Metrics == nil {
		deps.Agent.Metrics = deps.Metrics
	}
	return &Orchestrator{deps: deps, logger: deps.Logger}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr). Call
// it before the first Run.
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

// Request is one user prompt to process.
type Request struct {
	Prompt string
	UserID string
	RunID  string // generated when empty
}

// Run returns the event sequence for req. Nothing happens until the sequence
// is ranged over; each stage starts only after the previous event has been
// consumed, and a consumer that stops early abandons the run. Every event is
// recorded in the conversation store before it is yielded. Any failure ends
// the sequence with exactly one error event.
func (o *Orchestrator) Run(ctx context.Context, req Request) iter.Seq[pipeline.Event] {
	return func(yield func(pipeline.Event) bool) {
		runID := req.RunID
		if runID == "" {
			runID = uuid.NewString()
		}
		r := &run{
			o:       o,
			ctx:     stage.WithRunID(ctx, runID),
			req:     req,
			yield:   yield,
			log:     o.logger.With(zap.String("run_id", runID), zap.String("user_id", req.UserID)),
			outcome: OutcomeAbandoned,
		}

		if m := o.deps.Metrics; m != nil {
			m.ActiveRuns.Inc()
			defer m.ActiveRuns.Dec()
		}
		r.log.Info("run started")
		r.execute()
		r.log.Info("run finished", zap.String("outcome", r.outcome))
		if m := o.deps.Metrics; m != nil {
			m.PipelineRunsTotal.WithLabelValues(r.outcome).Inc()
		}
	}
}

// run is the state of one Run call.
type run struct {
	o       *Orchestrator
	ctx     context.Context
	req     Request
	yield   func(pipeline.Event) bool
	log     *zap.Logger
	convID  int64
	stopped bool
	outcome string
}

// emit records ev and hands it to the consumer. It reports whether the run
// should continue.
func (r *run) emit(ev pipeline.Event) bool {
	if r.stopped {
		return false
	}
	if err := r.o.deps.Store.AppendMessage(r.ctx, r.convID, ev.AsMessage()); err != nil {
		r.log.Error("record event failed", zap.String("status", ev.Status), zap.Error(err))
		r.deliver(errorEvent(fmt.Errorf("record %s: %w", strings.ToLower(ev.Status), err)))
		r.outcome = OutcomeError
		return false
	}
	return r.deliver(ev)
}

func (r *run) deliver(ev pipeline.Event) bool {
	if r.stopped {
		return false
	}
	if w := r.o.progress; w != nil {
		fmt.Fprintf(w, "  → %s\n", ev.Status)
	}
	if !r.yield(ev) {
		r.stopped = true
		r.outcome = OutcomeAbandoned
		return false
	}
	return true
}

// fail ends the run with one error event.
func (r *run) fail(err error) {
	r.log.Error("run failed", zap.Error(err))
	ev := errorEvent(err)
	if r.convID != 0 {
		if appendErr := r.o.deps.Store.AppendMessage(r.ctx, r.convID, ev.AsMessage()); appendErr != nil {
			r.log.Warn("record error event failed", zap.Error(appendErr))
		}
	}
	if r.deliver(ev) {
		r.outcome = OutcomeError
	}
}

func errorEvent(err error) pipeline.Event {
	return pipeline.Event{
		Type:    pipeline.TypeError,
		Content: "Sorry, I encountered an error: " + err.Error(),
		Status:  pipeline.StatusError,
		Error:   err.Error(),
	}
}

func say(content, status string) pipeline.Event {
	return pipeline.Event{Type: pipeline.TypeConversation, Content: content, Status: status}
}

func (r *run) execute() {
	d := r.o.deps
	id, err := d.Store.CreateConversation(r.ctx, r.req.UserID, pipeline.Message{
		Role:    pipeline.RoleUser,
		Content: r.req.Prompt,
		Type:    pipeline.TypeConversation,
	})
	if err != nil {
		r.fail(fmt.Errorf("create conversation: %w", err))
		return
	}
	r.convID = id
	r.log = r.log.With(zap.Int64("conversation_id", id))

	if !r.emit(say("I'm analyzing your request...", pipeline.StatusStartingAnalysis)) {
		return
	}

	decisions, err := agent.NewDecisionTaker(d.Router.For(AgentDecision), d.Agent).Run(r.ctx, r.req.Prompt)
	if err != nil {
		r.fail(err)
		return
	}
	decision := decisions[0]
	r.log.Info("decision taken", zap.String("function", decision.Function))

	switch decision.Function {
	case agent.FunctionConversation:
		if r.emit(say(decision.Reply, pipeline.StatusConversationComplete)) {
			r.outcome = OutcomeConversation
		}
	case agent.FunctionProject:
		r.project()
	default:
		r.fail(fmt.Errorf("unsupported decision function %q", decision.Function))
	}
}

func (r *run) project() {
	d := r.o.deps
	ctx := r.ctx

	if !r.emit(say("Starting project planning...", pipeline.StatusPlanningStarted)) {
		return
	}
	plan, raw, err := agent.NewPlanner(d.Router.For(AgentPlanner), d.Agent).Run(ctx, r.req.Prompt)
	if err != nil {
		r.fail(err)
		return
	}
	name := strings.TrimSpace(plan.Project)
	if name == "" {
		name = DefaultProjectName
	}
	if err := d.Store.SetProject(ctx, r.convID, name, plan); err != nil {
		r.fail(fmt.Errorf("record project: %w", err))
		return
	}
	if !r.emit(pipeline.Event{
		Type:    pipeline.TypePlanner,
		Content: "Here's the project plan I've created:",
		Status:  pipeline.StatusPlanningCompleted,
		Data:    plan,
	}) {
		return
	}

	if !r.emit(say("Extracting key concepts for research...", pipeline.StatusExtractingKeywords)) {
		return
	}
	kws := r.extractKeywords()
	if !r.emit(pipeline.Event{
		Type:    pipeline.TypeKeywords,
		Content: "Key concepts identified: " + strings.Join(kws, ", "),
		Status:  pipeline.StatusKeywordsExtracted,
		Data:    kws,
	}) {
		return
	}

	if !r.emit(say("Researching relevant information...", pipeline.StatusResearchStarted)) {
		return
	}
	excerpt := agent.PlanExcerpt(raw)
	research, err := agent.NewResearcher(d.Router.For(AgentResearcher), d.Agent).Run(ctx, excerpt, kws)
	if err != nil {
		r.fail(err)
		return
	}
	if !r.emit(pipeline.Event{
		Type:    pipeline.TypeResearcher,
		Content: "Research completed. Here's what I found:",
		Status:  pipeline.StatusResearchCompleted,
		Data:    research,
	}) {
		return
	}

	if !r.emit(say("Gathering detailed information...", pipeline.StatusExecutingQueries)) {
		return
	}
	results, err := browser.SearchQueries(ctx, d.Retriever, research.Queries, d.RetrievalConcurrency, r.log)
	if err != nil {
		r.fail(fmt.Errorf("execute queries: %w", err))
		return
	}
	if !r.emit(pipeline.Event{
		Type:    pipeline.TypeConversation,
		Content: "Starting to write the code...",
		Status:  pipeline.StatusCodingStarted,
		Data:    results,
	}) {
		return
	}

	files, err := agent.NewCoder(d.Router.For(AgentCoder), d.Agent, d.Guesser).Run(ctx, excerpt, r.req.Prompt, results)
	if err != nil {
		r.fail(err)
		return
	}
	if !r.emit(pipeline.Event{
		Type:    pipeline.TypeCoder,
		Content: "Code generation completed!",
		Status:  pipeline.StatusCodingCompleted,
		Data:    files,
	}) {
		return
	}

	if !r.emit(say("Finalizing the project...", pipeline.StatusCreatingProject)) {
		return
	}
	project := agent.AssembleProject(name, files, d.Guesser)
	r.saveFiles(name, project.Files)
	if !r.emit(pipeline.Event{
		Type:    pipeline.TypeProject,
		Content: "Project successfully created!",
		Status:  pipeline.StatusProjectCompleted,
		Data: pipeline.ProjectSummary{
			Plan:           plan,
			Keywords:       kws,
			Research:       research,
			QueriesResults: results,
			Code:           files,
			Project:        project,
		},
	}) {
		return
	}

	if r.emit(say("You can now download your project files.", pipeline.StatusReadyForDownload)) {
		r.outcome = OutcomeProject
	}
}

// extractKeywords never fails the run: a panicking extractor yields no
// keywords.
func (r *run) extractKeywords() (kws []string) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("keyword extraction failed", zap.Any("panic", p))
			kws = []string{}
		}
	}()
	kws = r.o.deps.Keywords.Extract(r.req.Prompt, r.o.deps.TopN)
	if kws == nil {
		kws = []string{}
	}
	return kws
}

// saveFiles copies the assembled project to the object store. Failures are
// logged; the run continues.
func (r *run) saveFiles(name string, files []agent.CodeFile) {
	objects := r.o.deps.Objects
	if objects == nil {
		return
	}
	out := make([]storage.File, len(files))
	for i, f := range files {
		out[i] = storage.File{Path: f.Path, Content: f.Content}
	}
	meta := storage.Metadata{
		ProjectName: name,
		UserID:      r.req.UserID,
		ProjectID:   strconv.FormatInt(r.convID, 10),
	}
	if err := storage.SaveProject(r.ctx, objects, meta, out); err != nil {
		r.log.Warn("save project files failed", zap.Error(err))
		return
	}
	r.log.Info("project files saved", zap.Int("files", len(out)))
}
