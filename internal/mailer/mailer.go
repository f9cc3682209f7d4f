// Package mailer sends operator notification mails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/lumenhq/agent-platform/internal/config"
	"github.com/lumenhq/agent-platform/internal/model"
)

// Mailer sends operator notifications. Implementations must be safe for
// concurrent use.
type Mailer interface {
	// SendQuotaReached notifies the organization owner that the agent-query
	// quota has been reached.
	SendQuotaReached(ctx context.Context, org *model.Organization) error
	// SendNewConversation notifies the organization owner of a new website
	// conversation with the first exchange.
	SendNewConversation(ctx context.Context, org *model.Organization, conversationID, question, answer string) error
}

// SMTPMailer delivers mail through a configured SMTP relay. Connections are
// ephemeral, one per send.
type SMTPMailer struct {
	cfg config.MailConfig
}

// NewSMTP creates an SMTP mailer.
func NewSMTP(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendQuotaReached implements Mailer.
func (m *SMTPMailer) SendQuotaReached(ctx context.Context, org *model.Organization) error {
	subject := "Your AI agent has reached its monthly query limit"
	plain := fmt.Sprintf(
		"Hi,\n\nYour organization %q has used all %d agent queries included in the %s plan. "+
			"Your agents will stop answering until the quota resets or the plan is upgraded.\n",
		org.Name, org.AgentQueriesQuota, org.Plan)
	html := fmt.Sprintf(
		`<p>Hi,</p><p>Your organization <strong>%s</strong> has used all %d agent queries `+
			`included in the <strong>%s</strong> plan. Your agents will stop answering until `+
			`the quota resets or the plan is upgraded.</p>`,
		org.Name, org.AgentQueriesQuota, org.Plan)

	msg, err := compose(m.cfg.From, org.OwnerEmail, subject, plain, html)
	if err != nil {
		return err
	}
	return send(ctx, m.cfg, org.OwnerEmail, msg)
}

// SendNewConversation implements Mailer.
func (m *SMTPMailer) SendNewConversation(ctx context.Context, org *model.Organization, conversationID, question, answer string) error {
	subject := "A visitor started a conversation with your agent"
	plain := fmt.Sprintf(
		"A new conversation (%s) just started on your website.\n\nVisitor: %s\n\nAgent: %s\n",
		conversationID, question, answer)
	html := fmt.Sprintf(
		`<p>A new conversation (<code>%s</code>) just started on your website.</p>`+
			`<p><strong>Visitor:</strong> %s</p><p><strong>Agent:</strong> %s</p>`,
		conversationID, question, answer)

	msg, err := compose(m.cfg.From, org.OwnerEmail, subject, plain, html)
	if err != nil {
		return err
	}
	return send(ctx, m.cfg, org.OwnerEmail, msg)
}

// compose builds a multipart/alternative RFC 5322 message with plain and
// HTML bodies.
func compose(from, to, subject, plain, html string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(subject)

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", from, err)
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("parse to address %q: %w", to, err)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", []*mail.Address{toAddr})

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	var ph mail.InlineHeader
	ph.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := tw.CreatePart(ph)
	if err != nil {
		return nil, fmt.Errorf("create plain part: %w", err)
	}
	if _, err := io.WriteString(pw, plain); err != nil {
		return nil, fmt.Errorf("write plain part: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, fmt.Errorf("close plain part: %w", err)
	}

	var hh mail.InlineHeader
	hh.Set("Content-Type", "text/html; charset=utf-8")
	hw, err := tw.CreatePart(hh)
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	body := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, html)
	if _, err := io.WriteString(hw, body); err != nil {
		return nil, fmt.Errorf("write html part: %w", err)
	}
	if err := hw.Close(); err != nil {
		return nil, fmt.Errorf("close html part: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}
