// Package pipeline defines the progress events a generation run emits and
// the NDJSON codec that carries them.
package pipeline

// Event types.
const (
	TypeConversation = "conversation"
	TypePlanner      = "planner"
	TypeKeywords     = "keywords"
	TypeResearcher   = "researcher"
	TypeCoder        = "coder"
	TypeProject      = "project"
	TypeError        = "error"
)

// Event statuses, in the order a full project run emits them.
const (
	StatusStartingAnalysis     = "Starting analysis"
	StatusConversationComplete = "Conversation complete"
	StatusPlanningStarted      = "Planning started"
	StatusPlanningCompleted    = "Planning completed"
	StatusExtractingKeywords   = "Extracting keywords"
	StatusKeywordsExtracted    = "Keywords extracted"
	StatusResearchStarted      = "Research started"
	StatusResearchCompleted    = "Research completed"
	StatusExecutingQueries     = "Executing queries"
	StatusCodingStarted        = "Coding started"
	StatusCodingCompleted      = "Coding completed"
	StatusCreatingProject      = "Creating project"
	StatusProjectCompleted     = "Project completed"
	StatusReadyForDownload     = "Ready for download"
	StatusError                = "Error occurred"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Event is one progress record of a run. Events are emitted in order and
// never changed afterwards.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Terminal reports whether no event can follow e.
func (e Event) Terminal() bool {
	return e.Type == TypeError ||
		e.Status == StatusConversationComplete ||
		e.Status == StatusReadyForDownload
}

// Message is an event as recorded in conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
}

// AsMessage converts an emitted event into its history record.
func (e Event) AsMessage() Message {
	return Message{Role: RoleAssistant, Content: e.Content, Type: e.Type, Data: e.Data}
}

// ProjectSummary is the data payload of the project completed event.
type ProjectSummary struct {
	Plan           any `json:"plan"`
	Keywords       any `json:"keywords"`
	Research       any `json:"research"`
	QueriesResults any `json:"queries_results"`
	Code           any `json:"code"`
	Project        any `json:"project"`
}
