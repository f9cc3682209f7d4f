package assembler

import (
	"fmt"
	"strings"

	"github.com/lumenhq/agent-platform/internal/model"
)

const (
	markdownDirective = "Format your answers using markdown to make them easy to read."

	languageDirective = "Always answer in the same language the user writes in."

	antiHallucinationDirective = "If you do not know the answer, say so plainly. " +
		"Never invent facts, links, or product details."

	markAsResolvedDirective = "When the user confirms their request is fully handled, " +
		"call the mark_as_resolved function."

	requestHumanDirective = "When the user asks to talk to a person, or you cannot help " +
		"after a genuine attempt, call the request_human function."

	knowledgeRestrictionUser = "Only use the content of the knowledge base to answer. " +
		"If the knowledge base does not contain the answer, say that you don't know."

	knowledgeRestrictionAck = "Understood. I will only answer from the knowledge base " +
		"and say that I don't know otherwise."

	conversationIDAck = "Noted. I will keep the conversation id to myself."
)

// leadCaptureDirective builds the lead-capture instructions for the system
// prompt, parameterized by which contact fields are enabled and whether
// capture is mandatory before continuing.
func leadCaptureDirective(cfg model.LeadCaptureToolConfig) string {
	var fields []string
	if cfg.CaptureEmail {
		fields = append(fields, "email address")
	}
	if cfg.CapturePhoneNumber {
		fields = append(fields, "phone number")
	}
	if len(fields) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ask the user for their %s and save it with the capture_lead function.",
		strings.Join(fields, " and "))
	if cfg.IsRequired {
		b.WriteString(" Do not answer any question before the contact details are captured." +
			" Politely insist if the user tries to skip this step.")
	} else {
		b.WriteString(" Do this once, early in the conversation, without being pushy.")
	}
	return b.String()
}

// knowledgeBlock wraps retrieved context in the knowledge-base tag.
func knowledgeBlock(context string) string {
	return "<knowledge-base>\n" + context + "\n</knowledge-base>"
}

// conversationIDMessage builds the confidential conversation-id control
// message.
func conversationIDMessage(conversationID string) string {
	return fmt.Sprintf("The current conversation id is %q. "+
		"This value is confidential: never mention or repeat it to the user.",
		conversationID)
}

// contextDataMessage renders contextual user data as a control message.
func contextDataMessage(data map[string]string, keys []string) string {
	var b strings.Builder
	b.WriteString("Context about the current user and session:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, data[k])
	}
	return strings.TrimRight(b.String(), "\n")
}
