package ui

import "github.com/rivo/tview"

// Crumb is one level of navigation: the page shown and the label it gets in
// the breadcrumb bar, such as a conversation id.
type Crumb struct {
	Page  string
	Label string
}

// Pages is a navigation stack over tview.Pages. Only the top page is visible.
type Pages struct {
	*tview.Pages
	stack    []Crumb
	onChange func(trail []Crumb)
}

// NewPages creates an empty navigation stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange sets a callback that receives the trail after every change.
func (p *Pages) SetOnChange(fn func(trail []Crumb)) {
	p.onChange = fn
}

// Push shows page on top of the stack. Pushing the page already on top only
// relabels it.
func (p *Pages) Push(page, label string) {
	if n := len(p.stack); n > 0 {
		if p.stack[n-1].Page == page {
			p.stack[n-1].Label = label
			p.notify()
			return
		}
		p.HidePage(p.stack[n-1].Page)
	}
	p.stack = append(p.stack, Crumb{Page: page, Label: label})
	p.show(page)
	p.notify()
}

// Pop removes the top page and shows the one below. The root page stays.
// It returns the popped page name, or "" when nothing was popped.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top.Page)
	p.stack = p.stack[:len(p.stack)-1]
	p.show(p.stack[len(p.stack)-1].Page)
	p.notify()
	return top.Page
}

// Reset drops the whole stack and shows page alone.
func (p *Pages) Reset(page, label string) {
	for _, c := range p.stack {
		p.HidePage(c.Page)
	}
	p.stack = []Crumb{{Page: page, Label: label}}
	p.show(page)
	p.notify()
}

// Current returns the top page name.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1].Page
}

// Trail returns a copy of the stack, root first.
func (p *Pages) Trail() []Crumb {
	out := make([]Crumb, len(p.stack))
	copy(out, p.stack)
	return out
}

// Labels returns the breadcrumb labels, root first.
func (p *Pages) Labels() []string {
	out := make([]string, len(p.stack))
	for i, c := range p.stack {
		out[i] = c.Label
	}
	return out
}

// Depth returns the stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

func (p *Pages) show(page string) {
	p.ShowPage(page)
	p.SendToFront(page)
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Trail())
	}
}
