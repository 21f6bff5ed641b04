package views

import (
	"fmt"

	"github.com/pveiga/skillswap/internal/store"
	"github.com/rivo/tview"
)

// MessageView displays the open conversation.
type MessageView struct {
	*tview.TextView
	me      string
	partner string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetMe sets the signed-in user id.
func (mv *MessageView) SetMe(me string) {
	mv.me = me
}

// SetPartner updates the title with the conversation partner.
func (mv *MessageView) SetPartner(partner string) {
	mv.partner = partner
	mv.SetTitle(fmt.Sprintf(" %s ", partner))
}

// Update refreshes the view with the conversation, oldest first.
func (mv *MessageView) Update(msgs []store.Message) {
	mv.Clear()

	for _, m := range msgs {
		sender := m.SenderID
		if m.SenderID == mv.me {
			sender = "You"
		}
		ts := formatTimestamp(m.Timestamp)
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n", sender, ts, renderBody(m))
		_, _ = fmt.Fprint(mv, line)
	}

	mv.ScrollToEnd()
}

// renderBody formats a message body by kind. Attachments show their
// content line plus the download URL; voice notes have no file name worth
// showing.
func renderBody(m store.Message) string {
	body := sanitizeForTerminal(m.Content)
	switch m.Kind {
	case store.KindFile:
		return fmt.Sprintf("[yellow]⎙[-] %s\n[::d]%s[-:-:-]", body, m.FileURL)
	case store.KindImage:
		return fmt.Sprintf("[yellow]▣[-] %s\n[::d]%s[-:-:-]", body, m.FileURL)
	case store.KindVoice:
		return fmt.Sprintf("[yellow]♫[-] %s\n[::d]%s[-:-:-]", body, m.FileURL)
	default:
		return body
	}
}
