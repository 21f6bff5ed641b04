package views

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/pveiga/skillswap/internal/store"
	"github.com/rivo/tview"
)

// CallPopup shows an incoming or accepted call: the counterpart, the
// meeting link and a scannable QR code so the call can be joined from a
// phone.
type CallPopup struct {
	*tview.Flex
	text     *tview.TextView
	onAccept func()
	onReject func()
}

// NewCallPopup creates the popup.
func NewCallPopup() *CallPopup {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true).SetTitle(" Video Call ")

	p := &CallPopup{text: tv}
	p.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(tv, 0, 3, true).
			AddItem(nil, 0, 1, false), 0, 3, true).
		AddItem(nil, 0, 1, false)
	return p
}

// SetHandlers sets the accept/reject callbacks used by the key hints.
func (p *CallPopup) SetHandlers(accept, reject func()) {
	p.onAccept = accept
	p.onReject = reject
}

// Accept invokes the accept handler, if any.
func (p *CallPopup) Accept() {
	if p.onAccept != nil {
		p.onAccept()
	}
}

// Reject invokes the reject handler, if any.
func (p *CallPopup) Reject() {
	if p.onReject != nil {
		p.onReject()
	}
}

// ShowIncoming renders the ringing state for the receiver.
func (p *CallPopup) ShowIncoming(call store.Call) {
	p.text.Clear()
	_, _ = fmt.Fprintf(p.text,
		"\n[::b]%s is calling[-:-:-]\n\n  a:accept   r:reject\n\n[::d]Rings out after 30 seconds[-:-:-]",
		call.CallerID)
}

// ShowOutgoing renders the ringing state for the caller.
func (p *CallPopup) ShowOutgoing(call store.Call) {
	p.text.Clear()
	_, _ = fmt.Fprintf(p.text,
		"\n[::b]Calling %s...[-:-:-]\n\n[::d]Waiting for an answer[-:-:-]",
		call.ReceiverID)
}

// ShowJoined renders the accepted state with the meeting link.
func (p *CallPopup) ShowJoined(call store.Call) {
	p.text.Clear()
	_, _ = fmt.Fprintf(p.text,
		"\n[::b]Call accepted[-:-:-]\n\n%s\n\n%s\n[::d]Scan to join from your phone, Esc to dismiss[-:-:-]",
		call.Link, renderQR(call.Link))
}

// ShowEnded renders a terminal notice.
func (p *CallPopup) ShowEnded(msg string) {
	p.text.Clear()
	_, _ = fmt.Fprintf(p.text, "\n\n%s\n\n[::d]Esc to dismiss[-:-:-]", msg)
}

// renderQR converts a string to a compact ASCII QR code using Unicode
// half-block characters.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}
	qr.DisableBorder = false

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
			bot := false
			if y+1 < rows {
				bot = bitmap[y+1][x]
			}
			switch {
			case top && bot:
				sb.WriteRune('█') // █
			case top && !bot:
				sb.WriteRune('▀') // ▀
			case !top && bot:
				sb.WriteRune('▄') // ▄
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}

	return sb.String()
}
