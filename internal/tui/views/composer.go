package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the single-line message input at the bottom of a chat.
// Enter submits; whitespace-only input is ignored so a stray Enter
// never reaches the send path. The input keeps its content until the
// owner calls Clear, so a rejected send stays editable for retry.
type Composer struct {
	*tview.InputField
	onSend func(text string)
}

func NewComposer() *Composer {
	c := &Composer{
		InputField: tview.NewInputField().
			SetLabel(" ✎ ").
			SetPlaceholder("type a message").
			SetFieldWidth(0),
	}

	c.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || c.onSend == nil {
			return
		}
		text := strings.TrimSpace(c.GetText())
		if text == "" {
			return
		}
		c.onSend(text)
	})

	return c
}

// Clear empties the input. Call it once a submitted send has succeeded.
func (c *Composer) Clear() {
	c.SetText("")
}

// SetOnSend registers the callback invoked with the trimmed input on Enter.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}
