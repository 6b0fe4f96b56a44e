package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// InstanceData is what the header shows about the connected daemon.
type InstanceData struct {
	Instance    string
	StoreDriver string
	StoreOK     bool
	Topics      int
	Ingested    int64
	Uptime      time.Duration
}

// InstanceInfo displays daemon metadata in the header.
type InstanceInfo struct {
	*tview.TextView
	theme *Theme
}

// NewInstanceInfo creates a new instance info panel.
func NewInstanceInfo(theme *Theme) *InstanceInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &InstanceInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the instance info. nil means the daemon is unreachable.
func (ii *InstanceInfo) Update(data *InstanceData) {
	ii.Clear()
	fg := ColorName(ii.theme.FgColor)
	counter := ColorName(ii.theme.CounterColor)
	if data == nil {
		_, _ = fmt.Fprintf(ii, "[%s]daemon unreachable[-]", ColorName(ii.theme.FlashErrColor))
		return
	}

	store := "ok"
	if !data.StoreOK {
		store = fmt.Sprintf("[%s]down[-]", ColorName(ii.theme.FlashErrColor))
	}

	_, _ = fmt.Fprintf(ii,
		"[%s::b]Instance:[-:-:-] [%s]%s[-]  "+
			"[%s::b]Store:[-:-:-] [%s]%s[-] %s  "+
			"[%s::b]Live:[-:-:-] [%s]%d[-]  "+
			"[%s::b]Webhooks:[-:-:-] [%s]%d[-]  "+
			"[%s::b]Uptime:[-:-:-] [%s]%s[-]",
		fg, counter, tview.Escape(data.Instance),
		fg, counter, data.StoreDriver, store,
		fg, counter, data.Topics,
		fg, counter, data.Ingested,
		fg, counter, FormatDuration(data.Uptime),
	)
}

// FormatDuration renders d as "1h2m" or "3m".
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
