package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpprelay/internal/model"
	"github.com/matheus3301/wpprelay/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the main conversation table.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []model.Conversation
	visible []string
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ConversationList{
		Table: table,
		theme: theme,
	}
	cl.render()
	return cl
}

// Name implements ui.Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Hints implements ui.Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Enter", Description: "Open"}}
}

// Update replaces the list, keeping the selected conversation if present.
func (cl *ConversationList) Update(convs []model.Conversation) {
	selected := cl.Selected()
	cl.convs = convs
	cl.render()
	for i, id := range cl.visible {
		if id == selected {
			cl.Select(i+1, 0)
			break
		}
	}
}

// SetFilter narrows the list to conversations whose id or last message
// contains filter, ignoring case.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

func (cl *ConversationList) render() {
	cl.Clear()
	cl.visible = cl.visible[:0]

	for col, h := range []struct {
		text string
		exp  int
	}{
		{" CONVERSATION", 1},
		{" LAST MESSAGE", 3},
		{" ACTIVITY", 0},
	} {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	row := 1
	for _, c := range cl.convs {
		if !matchFilter(cl.filter, c.ConversationID, c.LastMessageBody) {
			continue
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(c.ConversationID)).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(firstLine(c.LastMessageBody)))).SetExpansion(3).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(c.LastActivityAt, time.Now())).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.visible = append(cl.visible, c.ConversationID)
		row++
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// Selected returns the id of the highlighted conversation, or "".
func (cl *ConversationList) Selected() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx < 0 || idx >= len(cl.visible) {
		return ""
	}
	return cl.visible[idx]
}

func matchFilter(filter string, fields ...string) bool {
	if filter == "" {
		return true
	}
	filter = strings.ToLower(filter)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), filter) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

// formatTimestamp shows the clock for today and the date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
