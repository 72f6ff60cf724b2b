package service

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestVerificationMessageEscapesName(t *testing.T) {
	msg, err := verificationMessage("http://shop.test", "ada@example.com", `<script>x</script>`, "abc123", 24*time.Hour)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.To != "ada@example.com" || msg.Subject != "Verify your email" {
		t.Fatalf("unexpected headers: %+v", msg)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("name was not escaped: %s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "http://shop.test/verify-email?token=abc123") {
		t.Fatalf("link missing: %s", msg.HTML)
	}
}

func TestResetMessageLink(t *testing.T) {
	msg, err := resetMessage("http://shop.test", "ada@example.com", "Ada", "deadbeef", time.Hour)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(msg.HTML, "http://shop.test/reset-password?token=deadbeef") {
		t.Fatalf("link missing: %s", msg.HTML)
	}
}

type capturingLogger struct {
	discardLogger
	lines []string
}

func (l *capturingLogger) Infof(format string, args ...interface{}) {
	l.lines = append(l.lines, format)
}

func TestLogMailer(t *testing.T) {
	l := &capturingLogger{}
	if err := (LogMailer{Log: l}).Send(context.Background(), Message{To: "a@b.c", Subject: "s"}); err != nil {
		t.Fatal(err)
	}
	if len(l.lines) != 1 {
		t.Fatalf("expected one log line")
	}
}
