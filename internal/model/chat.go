package model

// ChatRequest is the inbound payload handled by the orchestrator.
type ChatRequest struct {
	AgentID        string  `json:"agent_id"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Channel        Channel `json:"channel,omitempty"`

	// ExternalID is the channel-side visitor/thread identifier used to reuse
	// an existing conversation.
	ExternalID string `json:"external_id,omitempty"`
	ContactID  string `json:"contact_id,omitempty"`

	Query string `json:"query"`
	// Queries batches several queued inbound messages into one turn; when
	// set, Query is ignored and the entries are concatenated.
	Queries []string `json:"queries,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`

	// Per-request overrides.
	ModelNameOverride    string            `json:"model_name,omitempty"`
	SystemPromptOverride string            `json:"system_prompt,omitempty"`
	Context              string            `json:"context,omitempty"`
	ContextData          map[string]string `json:"context_data,omitempty"`

	// Draft computes a suggested reply without persisting anything: the
	// inbound message is not stored and the answer is returned only.
	Draft bool `json:"draft,omitempty"`
	// RetrievalQuery overrides the retrieval query in draft-reply mode.
	RetrievalQuery string `json:"retrieval_query,omitempty"`
}

// ChatOutcome classifies how a turn ended.
type ChatOutcome string

const (
	OutcomeCompleted        ChatOutcome = "completed"
	OutcomeApprovalRequired ChatOutcome = "approval_required"
	OutcomeAIDisabled       ChatOutcome = "ai_disabled"
)

// ChatResult is the terminal state of one orchestrated turn.
type ChatResult struct {
	Outcome ChatOutcome `json:"outcome"`

	Answer    string         `json:"answer"`
	Sources   []Source       `json:"sources,omitempty"`
	Approvals []Approval     `json:"approvals,omitempty"`
	Usage     *MessageUsage  `json:"usage,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	ConversationID  string `json:"conversation_id"`
	InputMessageID  string `json:"input_message_id,omitempty"`
	AnswerMessageID string `json:"answer_message_id,omitempty"`

	IsAIEnabled bool               `json:"is_ai_enabled"`
	Status      ConversationStatus `json:"status,omitempty"`
}
