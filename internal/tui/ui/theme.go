package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor         tcell.Color
	FgColor         tcell.Color
	BorderColor     tcell.Color
	TableHeaderFg   tcell.Color
	TableCursorFg   tcell.Color
	TableCursorBg   tcell.Color
	CrumbActiveFg   tcell.Color
	CrumbActiveBg   tcell.Color
	CrumbInactiveFg tcell.Color
	CrumbInactiveBg tcell.Color
	MenuKeyColor    tcell.Color
	TitleColor      tcell.Color
	CounterColor    tcell.Color
	InboundColor    tcell.Color
	OutboundColor   tcell.Color
	FlashInfoColor  tcell.Color
	FlashWarnColor  tcell.Color
	FlashErrColor   tcell.Color
}

// DefaultTheme returns a dark theme with green accents.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:         tcell.ColorBlack,
		FgColor:         tcell.ColorSilver,
		BorderColor:     tcell.ColorSeaGreen,
		TableHeaderFg:   tcell.ColorWhite,
		TableCursorFg:   tcell.ColorBlack,
		TableCursorBg:   tcell.ColorMediumSeaGreen,
		CrumbActiveFg:   tcell.ColorBlack,
		CrumbActiveBg:   tcell.ColorLimeGreen,
		CrumbInactiveFg: tcell.ColorBlack,
		CrumbInactiveBg: tcell.ColorDarkCyan,
		MenuKeyColor:    tcell.ColorLimeGreen,
		TitleColor:      tcell.ColorAqua,
		CounterColor:    tcell.ColorPapayaWhip,
		InboundColor:    tcell.ColorLightSkyBlue,
		OutboundColor:   tcell.ColorPaleGreen,
		FlashInfoColor:  tcell.ColorNavajoWhite,
		FlashWarnColor:  tcell.ColorOrange,
		FlashErrColor:   tcell.ColorOrangeRed,
	}
}

// ColorName returns a tview-compatible color name string.
func ColorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
