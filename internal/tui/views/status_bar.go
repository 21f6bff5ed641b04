package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays the session, the feed state and flash messages.
type StatusBar struct {
	*tview.TextView
	session string
	user    string
	online  bool
	flash   string
	hints   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetUser updates the signed-in identity display.
func (sb *StatusBar) SetUser(email string) {
	sb.user = email
	sb.render()
}

// SetOnline updates the change-feed indicator.
func (sb *StatusBar) SetOnline(online bool) {
	sb.online = online
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

// SetHints sets the keybinding hint line for the current page.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = strings.Join(hints, "  ")
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	feed := "[red]offline[-]"
	if sb.online {
		feed = "[green]live[-]"
	}
	user := sb.user
	if user == "" {
		user = "signed out"
	}

	clock := time.Now().Format("15:04")

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s | %s", sb.session, user, feed, clock)
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	} else if sb.hints != "" {
		line += fmt.Sprintf(" | [gray]%s[-]", sb.hints)
	}

	_, _ = fmt.Fprint(sb, line)
}
