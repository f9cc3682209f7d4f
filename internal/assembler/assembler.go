// Package assembler builds the ordered message list and tool schemas for one
// chat turn from the agent configuration, conversation history, and retrieved
// knowledge.
package assembler

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/internal/llm"
	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/internal/retrieval"
	"github.com/lumenhq/agent-platform/internal/tool"
	"github.com/lumenhq/agent-platform/pkg/logger"
)

const (
	// historyBudgetShare is the fraction of the model's max-token budget
	// available to conversation history.
	historyBudgetShare = 0.3

	// historyTokensCap is the hard cap on history tokens regardless of the
	// model's budget.
	historyTokensCap = 2000

	queryPlaceholder = "{query}"
)

// historyMaxTokens returns min(30% of the model budget, 2000).
func historyMaxTokens(modelContextTokens int) int {
	budget := int(float64(modelContextTokens) * historyBudgetShare)
	if budget > historyTokensCap {
		return historyTokensCap
	}
	return budget
}

// Input carries everything the assembler needs for one turn.
type Input struct {
	Agent *model.Agent
	Spec  llm.ModelSpec

	ConversationID string
	History        []model.Message
	Query          string
	// RetrievalQuery overrides the raw query for knowledge-base lookup.
	RetrievalQuery string
	// ImageURLs are resolved image attachments for the final user turn.
	ImageURLs []string

	ContextData  map[string]string
	ExtraContext string

	// Bound is the callable tool set already filtered for this channel.
	Bound []tool.Bound

	// UseMarkdown is the agent flag after channel compatibility is applied.
	UseMarkdown bool
	// HumanMessageCount is the number of human messages in the conversation
	// including the current one, used for message-count form triggers.
	HumanMessageCount int

	RetrievalTopK     int
	RetrievalMinScore float64
}

// Output is the assembled call input.
type Output struct {
	Messages   []llm.ChatMessage
	Tools      []llm.ToolSpec
	ToolChoice llm.ToolChoice
	Sources    []model.Source
}

// Assembler composes chat turns.
type Assembler struct {
	retriever retrieval.Retriever
	logger    *logger.Logger
}

// New creates an assembler. The retriever may be nil when no knowledge base
// is configured.
func New(retriever retrieval.Retriever, log *logger.Logger) *Assembler {
	return &Assembler{retriever: retriever, logger: log}
}

// Assemble builds the ordered message list, tool schemas, and tool choice for
// one turn. Retrieval failures degrade to an empty knowledge block rather
// than failing the turn.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Output, error) {
	out := &Output{ToolChoice: llm.ToolChoiceAuto}
	for _, b := range in.Bound {
		out.Tools = append(out.Tools, b.Spec)
	}

	knowledge := a.retrieve(ctx, in, out)

	var messages []llm.ChatMessage

	if system := a.systemPrompt(in); system != "" {
		messages = append(messages, llm.ChatMessage{Role: "system", Content: system})
	}

	// The restriction pair only makes sense when there is retrieved context
	// to restrict the model to.
	if in.Agent.RestrictKnowledge && knowledge != "" {
		messages = append(messages,
			llm.ChatMessage{Role: "user", Content: knowledgeRestrictionUser},
			llm.ChatMessage{Role: "assistant", Content: knowledgeRestrictionAck},
		)
	}

	if knowledge != "" {
		messages = append(messages, llm.ChatMessage{Role: "system", Content: knowledgeBlock(knowledge)})
	}

	messages = append(messages, a.controlPairs(in)...)

	budget := historyMaxTokens(in.Spec.ContextTokens)
	for _, msg := range llm.TruncateHistory(historyMessages(in.History), budget) {
		messages = append(messages, msg)
	}

	messages = append(messages, a.userTurn(in))
	out.Messages = messages

	a.applyFormTrigger(in, out)
	return out, nil
}

// retrieve runs the knowledge-base lookup over the agent's datastore tools.
func (a *Assembler) retrieve(ctx context.Context, in Input, out *Output) string {
	datastoreIDs := datastoreIDs(in.Agent)
	if a.retriever == nil || len(datastoreIDs) == 0 {
		return ""
	}

	query := in.RetrievalQuery
	if query == "" {
		query = in.Query
	}
	if strings.TrimSpace(query) == "" {
		return ""
	}

	result, err := a.retriever.Retrieve(ctx, retrieval.Query{
		Query:        query,
		DatastoreIDs: datastoreIDs,
		TopK:         in.RetrievalTopK,
		MinScore:     in.RetrievalMinScore,
		MaxTokens:    retrieval.MaxContextTokens(in.Spec.ContextTokens),
	})
	if err != nil {
		a.logger.Warn("knowledge retrieval failed, continuing without context",
			zap.String("agent_id", in.Agent.ID),
			zap.Error(err))
		return ""
	}

	if in.Agent.IncludeSources {
		out.Sources = result.Sources
	}
	return result.Context
}

// systemPrompt composes the agent's base prompt with the flag-driven
// behavioral directives.
func (a *Assembler) systemPrompt(in Input) string {
	sections := []string{strings.TrimSpace(in.Agent.SystemPrompt)}

	if in.UseMarkdown {
		sections = append(sections, markdownDirective)
	}
	if in.Agent.UseLanguageDetection {
		sections = append(sections, languageDirective, antiHallucinationDirective)
	}

	for _, b := range in.Bound {
		switch b.Tool.Type {
		case model.ToolTypeLeadCapture:
			var cfg model.LeadCaptureToolConfig
			if err := b.Tool.DecodeConfig(&cfg); err == nil {
				if d := leadCaptureDirective(cfg); d != "" {
					sections = append(sections, d)
				}
			}
		case model.ToolTypeMarkAsResolved:
			sections = append(sections, markAsResolvedDirective)
		case model.ToolTypeRequestHuman:
			sections = append(sections, requestHumanDirective)
		}
	}

	var nonEmpty []string
	for _, s := range sections {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// controlPairs builds the synthetic user/assistant pairs that inject turn
// context the model must use but never echo.
func (a *Assembler) controlPairs(in Input) []llm.ChatMessage {
	var messages []llm.ChatMessage

	if in.Agent.UseContextDataAgents && len(in.ContextData) > 0 {
		keys := make([]string, 0, len(in.ContextData))
		for k := range in.ContextData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		messages = append(messages,
			llm.ChatMessage{Role: "user", Content: contextDataMessage(in.ContextData, keys)},
			llm.ChatMessage{Role: "assistant", Content: "Understood, I will take this context into account."},
		)
	}

	if extra := strings.TrimSpace(in.ExtraContext); extra != "" {
		messages = append(messages,
			llm.ChatMessage{Role: "user", Content: "Additional context for this conversation:\n" + extra},
			llm.ChatMessage{Role: "assistant", Content: "Understood, I will take this context into account."},
		)
	}

	if in.ConversationID != "" {
		messages = append(messages,
			llm.ChatMessage{Role: "user", Content: conversationIDMessage(in.ConversationID)},
			llm.ChatMessage{Role: "assistant", Content: conversationIDAck},
		)
	}

	return messages
}

// userTurn builds the final user message, multimodal when the model supports
// vision and image attachments are present.
func (a *Assembler) userTurn(in Input) llm.ChatMessage {
	text := in.Query
	if tmpl := strings.TrimSpace(in.Agent.UserPrompt); tmpl != "" {
		if strings.Contains(tmpl, queryPlaceholder) {
			text = strings.ReplaceAll(tmpl, queryPlaceholder, in.Query)
		} else {
			text = tmpl + "\n\n" + in.Query
		}
	}

	if !in.Spec.SupportsVision || len(in.ImageURLs) == 0 {
		return llm.ChatMessage{Role: "user", Content: text}
	}

	parts := []llm.ContentPart{{Type: "text", Text: text}}
	for _, url := range in.ImageURLs {
		parts = append(parts, llm.ContentPart{Type: "image_url", ImageURL: url})
	}
	return llm.ChatMessage{Role: "user", Parts: parts}
}

// applyFormTrigger forces the form function when a form tool's message-count
// trigger matches the current human message count.
func (a *Assembler) applyFormTrigger(in Input, out *Output) {
	for _, b := range in.Bound {
		if b.Tool.Type != model.ToolTypeForm {
			continue
		}
		var cfg model.FormToolConfig
		if err := b.Tool.DecodeConfig(&cfg); err != nil {
			continue
		}
		if cfg.MessageCountTrigger > 0 && cfg.MessageCountTrigger == in.HumanMessageCount {
			out.ToolChoice = llm.ForcedTool(b.Spec.Name)
			return
		}
	}
}

// historyMessages converts stored conversation history into chat messages.
func historyMessages(history []model.Message) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := "user"
		if m.From == model.FromAgent {
			role = "assistant"
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: m.Text})
	}
	return messages
}

// datastoreIDs collects datastore ids from the agent's datastore tools.
func datastoreIDs(agent *model.Agent) []string {
	var ids []string
	for _, t := range agent.ToolsByType(model.ToolTypeDatastore) {
		var cfg model.DatastoreToolConfig
		if err := t.DecodeConfig(&cfg); err != nil || cfg.DatastoreID == "" {
			continue
		}
		ids = append(ids, cfg.DatastoreID)
	}
	return ids
}
