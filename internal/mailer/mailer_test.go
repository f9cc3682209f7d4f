package mailer

import (
	"strings"
	"testing"
)

func TestBareAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"owner@acme.test", "owner@acme.test"},
		{"Acme Support <owner@acme.test>", "owner@acme.test"},
		{"<owner@acme.test>", "owner@acme.test"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := bareAddress(tt.in); got != tt.want {
			t.Errorf("bareAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComposeMultipartAlternative(t *testing.T) {
	msg, err := compose(
		"Platform <noreply@platform.test>",
		"owner@acme.test",
		"Hello there",
		"plain body",
		"<p>html body</p>",
	)
	if err != nil {
		t.Fatal(err)
	}

	raw := string(msg)
	for _, want := range []string{
		"From: ", "To: <owner@acme.test>", "Subject: Hello there",
		"Message-Id:", "multipart/alternative",
		"text/plain", "text/html",
		"plain body", "html body",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestComposeRejectsBadAddresses(t *testing.T) {
	if _, err := compose("not an address", "owner@acme.test", "s", "p", "h"); err == nil {
		t.Error("expected error for malformed from address")
	}
}
