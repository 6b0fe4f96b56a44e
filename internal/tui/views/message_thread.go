package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpprelay/internal/model"
	"github.com/matheus3301/wpprelay/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays messages and a composer for a single conversation.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	convID   string
	live     bool
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := composer.GetText()
			if text != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string {
	if mt.convID != "" {
		return mt.convID
	}
	return "Messages"
}

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Enter", Description: "Send"}}
}

// SetConversation switches the thread to conversationID.
func (mt *MessageThread) SetConversation(conversationID string) {
	mt.convID = conversationID
	mt.live = false
	mt.messages.Clear()
	mt.renderTitle()
}

// SetLive marks whether the live watch is connected.
func (mt *MessageThread) SetLive(live bool) {
	mt.live = live
	mt.renderTitle()
}

func (mt *MessageThread) renderTitle() {
	state := "[gray]offline[-]"
	if mt.live {
		state = fmt.Sprintf("[%s]live[-]", ui.ColorName(mt.theme.OutboundColor))
	}
	mt.messages.SetTitle(fmt.Sprintf(" %s %s ", tview.Escape(mt.convID), state))
}

// SetOnSend sets the callback when a message is sent.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update renders msgs, oldest first.
func (mt *MessageThread) Update(msgs []model.Message) {
	mt.messages.Clear()
	now := time.Now()
	for _, m := range msgs {
		_, _ = fmt.Fprint(mt.messages, mt.formatMessage(m, now))
	}
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) formatMessage(m model.Message, now time.Time) string {
	sender, color := m.ConversationID, mt.theme.InboundColor
	if m.FromMe {
		sender, color = "You", mt.theme.OutboundColor
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s %s[-:-:-]\n%s\n\n",
		ui.ColorName(color), tview.Escape(sender),
		formatTimestamp(m.CreatedAt, now), statusMark(m),
		tview.Escape(sanitizeForTerminal(m.Body)))
}

// statusMark renders outbound receipts the way phones do.
func statusMark(m model.Message) string {
	if !m.FromMe {
		return ""
	}
	switch m.Status {
	case model.StatusSent:
		return "✓"
	case model.StatusDelivered:
		return "✓✓"
	case model.StatusRead:
		return "[blue]✓✓[-]"
	default:
		return ""
	}
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
