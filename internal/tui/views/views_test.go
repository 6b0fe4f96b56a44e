package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/wpprelay/internal/model"
	"github.com/matheus3301/wpprelay/internal/tui/ui"
)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"a\u200db", "ab"},
		{"\u263a\ufe0f", "\u263a"},
	}
	for _, tt := range tests {
		if got := sanitizeForTerminal(tt.in); got != tt.want {
			t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, ""},
		{time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC), "09:05"},
		{time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC), "02/27"},
	}
	for _, tt := range tests {
		if got := formatTimestamp(tt.at, now); got != tt.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestConversationListFilterAndSelect(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update([]model.Conversation{
		{ConversationID: "123", LastMessageBody: "Order shipped"},
		{ConversationID: "456", LastMessageBody: "hello"},
	})

	cl.Select(2, 0)
	if got := cl.Selected(); got != "456" {
		t.Errorf("Selected() = %q, want 456", got)
	}

	cl.SetFilter("ORDER")
	cl.Select(1, 0)
	if got := cl.Selected(); got != "123" {
		t.Errorf("Selected() after filter = %q, want 123", got)
	}
	if !strings.Contains(cl.GetTitle(), "(1/2)") {
		t.Errorf("title = %q, want filtered count", cl.GetTitle())
	}
}

func TestStatusMark(t *testing.T) {
	if statusMark(model.Message{Status: model.StatusRead}) != "" {
		t.Error("inbound message got a receipt mark")
	}
	if got := statusMark(model.Message{FromMe: true, Status: model.StatusDelivered}); got != "✓✓" {
		t.Errorf("delivered mark = %q", got)
	}
}

func TestRenderQR(t *testing.T) {
	out := RenderQR("ws://localhost:8000/api/ws/123")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("QR has %d lines, want a full code", len(lines))
	}
	if !strings.ContainsRune(out, '█') {
		t.Error("QR has no full blocks")
	}
}
