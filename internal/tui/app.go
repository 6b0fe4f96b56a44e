// Package tui is the terminal client: conversation list, live thread and
// composer over the daemon's control socket.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/tui/client"
	"github.com/matheus3301/wpprelay/internal/tui/keys"
	"github.com/matheus3301/wpprelay/internal/tui/ui"
	"github.com/matheus3301/wpprelay/internal/tui/viewmodel"
	"github.com/matheus3301/wpprelay/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageLink          = "link"

	refreshEvery   = 5 * time.Second
	reconnectDelay = 2 * time.Second
)

// Options describe the instance the TUI is attached to.
type Options struct {
	Instance string
	// WSBase is "ws://host:port" of the daemon's HTTP listener, or "" when
	// unknown.
	WSBase string
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	crumbs   *ui.Crumbs
	menu     *ui.Menu
	info     *ui.InstanceInfo
	flashBar *ui.FlashBar
	flash    *ui.FlashModel
	keys     *keys.Registry
	vm       *viewmodel.ViewModel
	client   *client.Client
	opts     Options

	convList *views.ConversationList
	filter   *tview.InputField
	thread   *views.MessageThread
	link     *views.LinkView
	comps    map[string]ui.Component

	ctx    context.Context
	cancel context.CancelFunc

	// Only touched on the UI goroutine.
	stopWatch context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		crumbs:   ui.NewCrumbs(theme),
		menu:     ui.NewMenu(theme),
		info:     ui.NewInstanceInfo(theme),
		flashBar: ui.NewFlashBar(theme),
		flash:    ui.NewFlashModel(),
		keys:     keys.NewRegistry(),
		vm:       viewmodel.New(c),
		client:   c,
		opts:     opts,
		convList: views.NewConversationList(theme),
		filter:   tview.NewInputField().SetLabel(" / ").SetFieldWidth(0),
		thread:   views.NewMessageThread(theme),
		link:     views.NewLinkView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.comps = map[string]ui.Component{
		pageConversations: a.convList,
		pageThread:        a.thread,
		pageLink:          a.link,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.keys.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit",
		Handler: a.Stop,
	})
	a.keys.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Refresh",
		Handler: func() { go a.refresh() },
	})
	a.keys.AddPage(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Label: "/", Description: "Filter",
		Handler: func() { a.app.SetFocus(a.filter) },
	})
	a.keys.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Compose",
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.keys.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'l', Label: "l", Description: "Live link",
		Handler: a.showLink,
	})
	a.keys.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyEscape, Label: "Esc", Description: "Back",
		Handler: a.closeThread,
	})
	a.keys.AddPage(pageLink, &keys.Action{
		Key: tcell.KeyEscape, Label: "Esc", Description: "Back",
		Handler: func() { a.pages.Pop() },
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if id := a.convList.Selected(); id != "" {
			a.openThread(id)
		}
	})

	a.filter.SetChangedFunc(a.convList.SetFilter)
	a.filter.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			a.filter.SetText("")
		}
		a.app.SetFocus(a.convList)
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.Send(a.ctx, text); err != nil {
				a.flash.Err(err)
			}
			a.app.QueueUpdateDraw(a.redrawThread)
		}()
	})

	a.pages.SetOnChange(func(trail []ui.Crumb) {
		a.crumbs.Update(a.pages.Labels())
		if len(trail) > 0 {
			top := trail[len(trail)-1].Page
			a.menu.Update(append(a.comps[top].Hints(), a.keys.Hints(top)...))
		}
	})
}

func (a *App) setupLayout() {
	convPage := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.filter, 1, 0, false).
		AddItem(a.convList, 0, 1, true)

	a.pages.AddPage(pageConversations, convPage, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageLink, a.link, true, false)

	header := tview.NewFlex().
		AddItem(a.info, 0, 3, false).
		AddItem(a.crumbs, 0, 1, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.menu, 1, 0, false)

	a.app.SetRoot(root, true)
	a.pages.Reset(pageConversations, a.comps[pageConversations].Name())

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()
		if input, ok := focused.(*tview.InputField); ok {
			// Esc leaves the composer before it leaves the page.
			if event.Key() == tcell.KeyEscape && input == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}
		if a.keys.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

func (a *App) openThread(id string) {
	go func() {
		if err := a.vm.Open(a.ctx, id); err != nil {
			a.flash.Err(err)
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetConversation(id)
			a.thread.Update(a.vm.Messages())
			a.pages.Push(pageThread, id)
			a.app.SetFocus(a.thread.Messages())

			ctx, cancel := context.WithCancel(a.ctx)
			a.stopWatch = cancel
			go a.watch(ctx, id)
		})
	}()
}

func (a *App) closeThread() {
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
	a.vm.Close()
	a.pages.Reset(pageConversations, a.comps[pageConversations].Name())
	a.app.SetFocus(a.convList)
	go a.refresh()
}

// watch follows one conversation until ctx ends, reconnecting when the
// stream drops.
func (a *App) watch(ctx context.Context, id string) {
	for ctx.Err() == nil {
		err := a.follow(ctx, id)
		a.app.QueueUpdateDraw(func() { a.thread.SetLive(false) })
		if ctx.Err() != nil {
			return
		}
		a.flash.Warn("live updates interrupted: " + err.Error())
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) follow(ctx context.Context, id string) error {
	w, err := a.client.Watch(ctx, id)
	if err != nil {
		return err
	}
	for {
		f, err := w.Recv()
		if err != nil {
			return err
		}
		switch {
		case f.Status == "connected":
			a.app.QueueUpdateDraw(func() { a.thread.SetLive(true) })
		case f.Message != nil:
			if a.vm.ApplyFrame(id, f) {
				a.app.QueueUpdateDraw(a.redrawThread)
			}
		}
	}
}

func (a *App) redrawThread() {
	a.thread.Update(a.vm.Messages())
	a.flashBar.Update(a.flash.Current())
}

func (a *App) showLink() {
	id := a.vm.Active()
	if id == "" {
		return
	}
	url := ""
	if a.opts.WSBase != "" {
		url = a.opts.WSBase + "/api/ws/" + id
	}
	a.link.Show(url)
	a.pages.Push(pageLink, a.comps[pageLink].Name())
}

// refresh reloads the status header and the conversation list.
func (a *App) refresh() {
	statusErr := a.vm.LoadStatus(a.ctx)
	listErr := a.vm.LoadConversations(a.ctx)
	if err := errors.Join(statusErr, listErr); err != nil && a.ctx.Err() == nil {
		a.flash.Err(err)
	}
	a.app.QueueUpdateDraw(func() {
		a.info.Update(instanceData(a.vm))
		a.convList.Update(a.vm.Conversations())
		a.flashBar.Update(a.flash.Current())
	})
}

func instanceData(vm *viewmodel.ViewModel) *ui.InstanceData {
	st := vm.Status()
	if st == nil {
		return nil
	}
	return &ui.InstanceData{
		Instance:    st.Instance,
		StoreDriver: st.StoreDriver,
		StoreOK:     st.StoreOK,
		Topics:      st.Topics,
		Ingested:    st.Events[bus.KindWebhookIngested],
		Uptime:      time.Duration(st.UptimeMs) * time.Millisecond,
	}
}

// Run starts the TUI application. Blocks until Stop.
func (a *App) Run() error {
	go func() {
		a.refresh()
		ticker := time.NewTicker(refreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.ctx.Done():
				return
			}
		}
	}()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
