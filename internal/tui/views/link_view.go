package views

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/matheus3301/wpprelay/internal/tui/ui"
	"github.com/rivo/tview"
)

// LinkView shows the real-time URL of a conversation as a QR code so a
// phone or browser client can subscribe to it.
type LinkView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewLinkView creates a new link view.
func NewLinkView(theme *ui.Theme) *LinkView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Live Link ")
	tv.SetTitleColor(theme.TitleColor)

	return &LinkView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Component.
func (lv *LinkView) Name() string { return "Link" }

// Hints implements ui.Component.
func (lv *LinkView) Hints() []ui.MenuHint {
	return nil
}

// Show renders url as a QR code with the url below it.
func (lv *LinkView) Show(url string) {
	lv.Clear()
	if url == "" {
		_, _ = fmt.Fprint(lv, "\n\nHTTP address unknown; is the daemon running?")
		return
	}
	_, _ = fmt.Fprintf(lv, "\n%s\n  %s", RenderQR(url), tview.Escape(url))
}

// RenderQR converts a string to a compact QR code using Unicode half-block
// characters, two modules per character row.
func RenderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('\u2588') // █
			case top:
				sb.WriteRune('\u2580') // ▀
			case bot:
				sb.WriteRune('\u2584') // ▄
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
