package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ARIHARAN-KC/nexa/internal/agent"
	"github.com/ARIHARAN-KC/nexa/internal/browser"
	"github.com/ARIHARAN-KC/nexa/internal/llm"
	"github.com/ARIHARAN-KC/nexa/internal/observability"
	"github.com/ARIHARAN-KC/nexa/internal/pipeline"
	"github.com/ARIHARAN-KC/nexa/internal/stage"
	"github.com/ARIHARAN-KC/nexa/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	projectDecision      = `[{"function":"coding_project","args":{},"reply":"Let's build it."}]`
	conversationDecision = "```json\n[{\"function\":\"ordinary_conversation\",\"args\":{},\"reply\":\"Hello! How can I help?\"}]\n```"
	planReply            = `Project Name: TodoAPI

Your Reply to the Human Prompter: I'll build a todo API.

Current Focus: The REST endpoints.

Plan:
- [ ] Step 1: Set up Express.
- [ ] Step 2: Add todo routes.

Summary: A small REST API.`
	researchReply = "```json\n{\"queries\": [\"Express Routing\", \"mongoose schema\"], \"ask_user\": \"\"}\n```"
	coderReply    = "file: server/app.js\n```js\nconst app = express();\n```\nfile: README.md\n```md\n# TodoAPI\n```"
)

// scripted replies per agent, repeating the last reply.
type fakeRouter struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	calls   map[string]int
	prompts map[string][]string
}

func newRouter(replies map[string][]string) *fakeRouter {
	return &fakeRouter{
		replies: replies,
		errs:    map[string]error{},
		calls:   map[string]int{},
		prompts: map[string][]string{},
	}
}

func (r *fakeRouter) For(agent string) llm.Client {
	return llm.ClientFunc(func(_ context.Context, prompt string) (string, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls[agent]++
		r.prompts[agent] = append(r.prompts[agent], prompt)
		if err := r.errs[agent]; err != nil {
			return "", err
		}
		q := r.replies[agent]
		if len(q) == 0 {
			return "", nil
		}
		reply := q[0]
		if len(q) > 1 {
			r.replies[agent] = q[1:]
		}
		return reply, nil
	})
}

func (r *fakeRouter) count(agent string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[agent]
}

type memStore struct {
	mu        sync.Mutex
	messages  map[int64][]pipeline.Message
	projects  map[int64]string
	nextID    int64
	failAfter int // fail AppendMessage once this many assistant messages are stored; 0 disables
	appended  int
	createErr error
}

func newStore() *memStore {
	return &memStore{messages: map[int64][]pipeline.Message{}, projects: map[int64]string{}}
}

func (s *memStore) CreateConversation(_ context.Context, _ string, first pipeline.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.nextID++
	s.messages[s.nextID] = []pipeline.Message{first}
	return s.nextID, nil
}

func (s *memStore) AppendMessage(_ context.Context, id int64, m pipeline.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && s.appended >= s.failAfter {
		return errors.New("disk full")
	}
	s.appended++
	s.messages[id] = append(s.messages[id], m)
	return nil
}

func (s *memStore) SetProject(_ context.Context, id int64, name string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[id] = name
	return nil
}

type fakeRetriever struct{}

func (fakeRetriever) FirstLink(_ context.Context, q string) (string, error) {
	if q == "express routing" {
		return "https://expressjs.com/en/guide/routing.html", nil
	}
	return "", nil
}

func (fakeRetriever) Fetch(context.Context, string) (string, error) {
	return "Routing refers to how an application responds.", nil
}

type fixedKeywords []string

func (k fixedKeywords) Extract(string, int) []string { return k }

type panickingKeywords struct{}

func (panickingKeywords) Extract(string, int) []string { panic("model not loaded") }

type harness struct {
	router  *fakeRouter
	store   *memStore
	metrics *observability.Metrics
	deps    Deps
}

func newHarness(replies map[string][]string) *harness {
	h := &harness{
		router:  newRouter(replies),
		store:   newStore(),
		metrics: observability.New(prometheus.NewRegistry()),
	}
	h.deps = Deps{
		Router:    h.router,
		Store:     h.store,
		Retriever: fakeRetriever{},
		Keywords:  fixedKeywords{"todo", "express"},
		Metrics:   h.metrics,
	}
	return h
}

func projectReplies() map[string][]string {
	return map[string][]string{
		AgentDecision:   {projectDecision},
		AgentPlanner:    {planReply},
		AgentResearcher: {researchReply},
		AgentCoder:      {coderReply},
	}
}

func collect(seq func(func(pipeline.Event) bool)) []pipeline.Event {
	var out []pipeline.Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func statuses(events []pipeline.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Status
	}
	return out
}

func TestRun_ProjectEventScript(t *testing.T) {
	h := newHarness(projectReplies())
	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "Build a todo API", UserID: "u1"}))

	assert.Equal(t, []string{
		pipeline.StatusStartingAnalysis,
		pipeline.StatusPlanningStarted,
		pipeline.StatusPlanningCompleted,
		pipeline.StatusExtractingKeywords,
		pipeline.StatusKeywordsExtracted,
		pipeline.StatusResearchStarted,
		pipeline.StatusResearchCompleted,
		pipeline.StatusExecutingQueries,
		pipeline.StatusCodingStarted,
		pipeline.StatusCodingCompleted,
		pipeline.StatusCreatingProject,
		pipeline.StatusProjectCompleted,
		pipeline.StatusReadyForDownload,
	}, statuses(events))

	types := []string{
		pipeline.TypeConversation, pipeline.TypeConversation, pipeline.TypePlanner,
		pipeline.TypeConversation, pipeline.TypeKeywords, pipeline.TypeConversation,
		pipeline.TypeResearcher, pipeline.TypeConversation, pipeline.TypeConversation,
		pipeline.TypeCoder, pipeline.TypeConversation, pipeline.TypeProject, pipeline.TypeConversation,
	}
	for i, ev := range events {
		assert.Equal(t, types[i], ev.Type, "event %d (%s)", i, ev.Status)
	}

	plan, ok := events[2].Data.(agent.Plan)
	require.True(t, ok)
	assert.Equal(t, "TodoAPI", plan.Project)
	assert.Equal(t, "Key concepts identified: todo, express", events[4].Content)

	results, ok := events[8].Data.(browser.Results)
	require.True(t, ok)
	require.Contains(t, results, "express routing")
	require.Contains(t, results, "mongoose schema")
	assert.Nil(t, results["mongoose schema"].Link)
	assert.Equal(t, "", results["mongoose schema"].Content)

	summary, ok := events[11].Data.(pipeline.ProjectSummary)
	require.True(t, ok)
	project := summary.Project.(agent.Project)
	assert.Equal(t, "Created project structure for TodoAPI with 2 files", project.Reply)

	// The researcher sees the plan excerpt, not the whole reply.
	assert.NotContains(t, h.router.prompts[AgentResearcher][0], "Project Name:")
	assert.Contains(t, h.router.prompts[AgentResearcher][0], "Todo, Express")

	msgs := h.store.messages[1]
	require.Len(t, msgs, len(events)+1, "user prompt plus one message per event")
	assert.Equal(t, pipeline.RoleUser, msgs[0].Role)
	assert.Equal(t, "Build a todo API", msgs[0].Content)
	assert.Equal(t, "TodoAPI", h.store.projects[1])

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PipelineRunsTotal.WithLabelValues(OutcomeProject)))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.ActiveRuns))
}

func TestAgentNamesKeyTokenTable(t *testing.T) {
	limits := llm.DefaultTokenLimits()
	for _, name := range []string{AgentDecision, AgentPlanner, AgentResearcher, AgentCoder, AgentBugFixer} {
		assert.Contains(t, limits, name)
	}
}

func TestRun_Conversation(t *testing.T) {
	h := newHarness(map[string][]string{AgentDecision: {conversationDecision}})
	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "hi", UserID: "u1"}))

	require.Len(t, events, 2)
	assert.Equal(t, pipeline.StatusStartingAnalysis, events[0].Status)
	assert.Equal(t, pipeline.StatusConversationComplete, events[1].Status)
	assert.Equal(t, "Hello! How can I help?", events[1].Content)
	assert.Zero(t, h.router.count(AgentPlanner))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PipelineRunsTotal.WithLabelValues(OutcomeConversation)))
}

func TestRun_ProgressWriter(t *testing.T) {
	h := newHarness(map[string][]string{AgentDecision: {conversationDecision}})
	var buf bytes.Buffer
	o := New(h.deps)
	o.SetProgress(&buf)

	collect(o.Run(context.Background(), Request{Prompt: "hi", UserID: "u1"}))
	assert.Equal(t, "  → Starting analysis\n  → Conversation complete\n", buf.String())
}

func TestRun_PlanningFailureYieldsOneErrorEvent(t *testing.T) {
	replies := projectReplies()
	replies[AgentPlanner] = []string{"I would rather not plan."}
	h := newHarness(replies)

	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "Build a todo API", UserID: "u1"}))

	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, pipeline.TypeError, last.Type)
	assert.Equal(t, pipeline.StatusError, last.Status)
	assert.Contains(t, last.Content, "Sorry, I encountered an error: ")
	assert.Contains(t, last.Error, stage.ErrExhausted.Error())
	assert.Equal(t, agent.PlannerAttempts, h.router.count(AgentPlanner))
	assert.Zero(t, h.router.count(AgentResearcher))

	errs := 0
	for _, ev := range events {
		if ev.Type == pipeline.TypeError {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
	msgs := h.store.messages[1]
	assert.Equal(t, pipeline.TypeError, msgs[len(msgs)-1].Type, "error event is recorded")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PipelineRunsTotal.WithLabelValues(OutcomeError)))
}

func TestRun_ProviderErrorIsFatal(t *testing.T) {
	h := newHarness(projectReplies())
	h.router.errs[AgentDecision] = errors.New("invalid api key")

	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "x", UserID: "u1"}))
	require.Len(t, events, 2)
	assert.Equal(t, "Sorry, I encountered an error: decision: invalid api key", events[1].Content)
	assert.Equal(t, 1, h.router.count(AgentDecision))
}

func TestRun_UnsupportedDecision(t *testing.T) {
	h := newHarness(map[string][]string{AgentDecision: {`[{"function":"browse","args":{},"reply":""}]`}})
	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "x", UserID: "u1"}))
	require.Len(t, events, 2)
	assert.Equal(t, pipeline.TypeError, events[1].Type)
	assert.Contains(t, events[1].Error, `unsupported decision function "browse"`)
}

func TestRun_EmptyKeywordsStillEmitted(t *testing.T) {
	h := newHarness(projectReplies())
	h.deps.Keywords = fixedKeywords(nil)

	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "Build a todo API", UserID: "u1"}))
	i := slices.IndexFunc(events, func(ev pipeline.Event) bool { return ev.Status == pipeline.StatusKeywordsExtracted })
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "Key concepts identified: ", events[i].Content)
	assert.Equal(t, []string{}, events[i].Data)
	assert.Equal(t, pipeline.StatusReadyForDownload, events[len(events)-1].Status)
}

func TestRun_KeywordPanicBecomesEmptyList(t *testing.T) {
	h := newHarness(projectReplies())
	h.deps.Keywords = panickingKeywords{}

	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "Build a todo API", UserID: "u1"}))
	assert.Equal(t, pipeline.StatusReadyForDownload, events[len(events)-1].Status)
}

func TestRun_AppendFailureEndsRun(t *testing.T) {
	h := newHarness(projectReplies())
	h.store.failAfter = 2

	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "Build a todo API", UserID: "u1"}))
	require.Len(t, events, 3)
	assert.Equal(t, pipeline.StatusPlanningStarted, events[1].Status)
	assert.Equal(t, pipeline.TypeError, events[2].Type)
	assert.Contains(t, events[2].Error, "disk full")
	assert.Zero(t, h.router.count(AgentResearcher))
}

func TestRun_CreateConversationFailure(t *testing.T) {
	h := newHarness(projectReplies())
	h.store.createErr = errors.New("db locked")

	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "x", UserID: "u1"}))
	require.Len(t, events, 1)
	assert.Equal(t, pipeline.TypeError, events[0].Type)
	assert.Zero(t, h.router.count(AgentDecision))
}

func TestRun_AbandonedConsumerStopsRun(t *testing.T) {
	h := newHarness(projectReplies())
	o := New(h.deps)

	var seen []string
	for ev := range o.Run(context.Background(), Request{Prompt: "Build a todo API", UserID: "u1"}) {
		seen = append(seen, ev.Status)
		if ev.Status == pipeline.StatusPlanningCompleted {
			break
		}
	}

	assert.Equal(t, []string{
		pipeline.StatusStartingAnalysis,
		pipeline.StatusPlanningStarted,
		pipeline.StatusPlanningCompleted,
	}, seen)
	assert.Zero(t, h.router.count(AgentResearcher), "no stage runs after abandonment")
	assert.Zero(t, h.router.count(AgentCoder))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PipelineRunsTotal.WithLabelValues(OutcomeAbandoned)))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.ActiveRuns))
}

func TestRun_LazyUntilRanged(t *testing.T) {
	h := newHarness(projectReplies())
	_ = New(h.deps).Run(context.Background(), Request{Prompt: "x", UserID: "u1"})
	assert.Zero(t, h.router.count(AgentDecision))
	assert.Empty(t, h.store.messages)
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(projectReplies())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(New(h.deps).Run(ctx, Request{Prompt: "x", UserID: "u1"}))
	last := events[len(events)-1]
	assert.Equal(t, pipeline.TypeError, last.Type)
	assert.Contains(t, last.Error, context.Canceled.Error())
}

func TestRun_SavesProjectFiles(t *testing.T) {
	h := newHarness(projectReplies())
	objects, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	h.deps.Objects = objects

	events := collect(New(h.deps).Run(context.Background(), Request{Prompt: "Build a todo API", UserID: "u1"}))
	require.Equal(t, pipeline.StatusReadyForDownload, events[len(events)-1].Status)

	files, err := storage.ListProjectFiles(context.Background(), objects, "u1", strconv.Itoa(1))
	require.NoError(t, err)
	assert.Contains(t, files, "server/app.js")
	assert.Contains(t, files, "README.md")
	assert.Contains(t, files, storage.MetadataFile)
}

func TestRun_RunIDReachesStageObserver(t *testing.T) {
	h := newHarness(map[string][]string{AgentDecision: {conversationDecision}})
	var mu sync.Mutex
	var ids []string
	h.deps.Agent.Observer = func(ctx context.Context, r stage.Record) {
		mu.Lock()
		ids = append(ids, r.RunID)
		mu.Unlock()
	}

	collect(New(h.deps).Run(context.Background(), Request{Prompt: "hi", UserID: "u1", RunID: "run-123"}))
	assert.Equal(t, []string{"run-123"}, ids)
}

func TestRun_ConcurrentRunsShareOrchestrator(t *testing.T) {
	o := New(newHarness(projectReplies()).deps)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events := collect(o.Run(context.Background(), Request{Prompt: "Build a todo API", UserID: "u1"}))
			assert.Equal(t, pipeline.StatusReadyForDownload, events[len(events)-1].Status)
		}()
	}
	wg.Wait()
}
