// Package tui is the terminal front end. It renders the live collections
// kept by the view model and reacts to bus events for calls and feed
// health.
package tui

import (
	"context"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/calls"
	"github.com/pveiga/skillswap/internal/store"
	"github.com/pveiga/skillswap/internal/tui/keys"
	"github.com/pveiga/skillswap/internal/tui/model"
	"github.com/pveiga/skillswap/internal/tui/views"
	"github.com/rivo/tview"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	bus       *bus.Bus
	registry  *keys.Registry
	statusBar *views.StatusBar
	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	callPopup *views.CallPopup
	loginView *views.LoginView
	ctx       context.Context
	cancel    context.CancelFunc

	mu         sync.Mutex
	activeCall store.Call
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, b *bus.Bus, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        vm,
		bus:       b,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		callPopup: views.NewCallPopup(),
		loginView: views.NewLoginView(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	vm.SetNotify(func() {
		a.app.QueueUpdateDraw(a.refreshCurrentPage)
	})

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddView("chat", "call", &keys.Action{
		Rune: 'v', Key: tcell.KeyRune,
		Description: "v:video call", Visible: true,
		Handler: func() { a.startCall() },
	})
	a.registry.AddView("call", "accept", &keys.Action{
		Rune: 'a', Key: tcell.KeyRune,
		Description: "a:accept", Visible: true,
		Handler: func() { a.callPopup.Accept() },
	})
	a.registry.AddView("call", "reject", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:reject", Visible: true,
		Handler: func() { a.callPopup.Reject() },
	})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		partner := a.chatList.SelectedPartner()
		if partner != "" {
			a.openChat(partner)
		}
	})

	a.composer.SetOnSend(func(text string) {
		go func() {
			err := a.vm.SendText(a.ctx, text)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					// Keep the rejected text in the composer so the
					// user can edit and retry.
					a.vm.Flash.Set("Send failed: " + err.Error())
				} else {
					a.composer.Clear()
				}
				a.msgView.Update(a.vm.Messages())
				a.statusBar.SetFlash(a.vm.Flash.Get())
			})
		}()
	})

	a.loginView.SetOnSubmit(func(email, password string) {
		a.loginView.ShowStatus("Signing in...")
		go func() {
			err := a.vm.SignIn(a.ctx, email, password)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.loginView.ShowStatus("[red]" + err.Error() + "[-]")
					return
				}
				a.enterSession()
			})
		}()
	})

	a.callPopup.SetHandlers(
		func() { // accept
			a.mu.Lock()
			call := a.activeCall
			a.mu.Unlock()
			go func() {
				if err := a.vm.AcceptCall(a.ctx, call); err != nil {
					a.vm.Flash.Set("Accept failed: "+err.Error())
				}
			}()
		},
		func() { // reject
			a.mu.Lock()
			call := a.activeCall
			a.mu.Unlock()
			go func() {
				if err := a.vm.RejectCall(a.ctx, call); err != nil {
					a.vm.Flash.Set("Reject failed: "+err.Error())
				}
			}()
			a.hideCallPopup()
		},
	)
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("login", a.loginView, true, true)
	a.pages.AddPage("chats", a.chatList, true, false)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("call", a.callPopup, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "chat":
				a.vm.CloseChat()
				a.showChats()
				return nil
			case "call":
				a.hideCallPopup()
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "chat" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

func (a *App) enterSession() {
	a.chatList.SetMe(a.vm.UserID())
	a.msgView.SetMe(a.vm.UserID())
	a.statusBar.SetUser(a.vm.Email())
	a.showChats()
}

func (a *App) showChats() {
	a.chatList.Update(a.vm.Recents())
	a.pages.SwitchToPage("chats")
	a.app.SetFocus(a.chatList)
	a.syncHints()
}

func (a *App) openChat(partner string) {
	go func() {
		if err := a.vm.OpenChat(a.ctx, partner); err != nil {
			a.vm.Flash.Set("Open failed: "+err.Error())
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.SetPartner(partner)
			a.msgView.Update(a.vm.Messages())
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.msgView)
			a.syncHints()
		})
	}()
}

func (a *App) startCall() {
	go func() {
		call, err := a.vm.StartCall(a.ctx)
		if err != nil {
			a.vm.Flash.Set("Call failed: "+err.Error())
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.mu.Lock()
			a.activeCall = call
			a.mu.Unlock()
			a.callPopup.ShowOutgoing(call)
			a.pages.ShowPage("call")
			a.syncHints()
		})
	}()
}

func (a *App) hideCallPopup() {
	a.pages.HidePage("call")
	if page, _ := a.pages.GetFrontPage(); page == "chats" {
		a.app.SetFocus(a.chatList)
	}
	a.syncHints()
}

func (a *App) refreshCurrentPage() {
	currentPage, _ := a.pages.GetFrontPage()
	switch currentPage {
	case "chats":
		a.chatList.Update(a.vm.Recents())
	case "chat":
		a.msgView.Update(a.vm.Messages())
	}
	a.statusBar.SetFlash(a.vm.Flash.Get())
	a.syncHints()
}

// syncHints refreshes the status-bar hint line for the frontmost page.
// The login page gets none since every key lands in a form field there.
func (a *App) syncHints() {
	page, _ := a.pages.GetFrontPage()
	if page == "login" {
		a.statusBar.SetHints(nil)
		return
	}
	a.statusBar.SetHints(a.registry.Hints(page))
}

// listenBus reacts to call and session events published by the monitors.
func (a *App) listenBus() {
	ch, unsub := a.bus.Subscribe(bus.TopicCall, 16)
	sessCh, sessUnsub := a.bus.Subscribe(bus.TopicSession, 16)
	defer unsub()
	defer sessUnsub()

	for {
		select {
		case evt := <-ch:
			a.handleCallEvent(evt)
		case evt := <-sessCh:
			switch evt.Kind {
			case "session.feed_up":
				a.app.QueueUpdateDraw(func() { a.statusBar.SetOnline(true) })
			case "session.feed_down":
				a.app.QueueUpdateDraw(func() { a.statusBar.SetOnline(false) })
			}
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleCallEvent(evt bus.Event) {
	call, ok := evt.Payload.(store.Call)
	if !ok {
		return
	}

	switch evt.Kind {
	case calls.EventIncoming:
		a.app.QueueUpdateDraw(func() {
			a.mu.Lock()
			a.activeCall = call
			a.mu.Unlock()
			a.callPopup.ShowIncoming(call)
			a.pages.ShowPage("call")
			a.syncHints()
		})
	case calls.EventAccepted:
		a.app.QueueUpdateDraw(func() {
			a.callPopup.ShowJoined(call)
			a.pages.ShowPage("call")
		})
	case calls.EventRejected:
		a.app.QueueUpdateDraw(func() {
			a.callPopup.ShowEnded("Call declined")
		})
	case calls.EventTimeout:
		a.app.QueueUpdateDraw(func() {
			a.callPopup.ShowEnded("No answer")
		})
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.listenBus()

	if a.vm.SignedIn() {
		go func() {
			if err := a.vm.GoOnline(a.ctx); err != nil {
				a.vm.Flash.Set("Startup failed: "+err.Error())
			}
			a.app.QueueUpdateDraw(a.enterSession)
		}()
	}

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
