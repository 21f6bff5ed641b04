package views

import (
	"time"

	"github.com/pveiga/skillswap/internal/store"
	"github.com/rivo/tview"
)

// ChatList is the recent-chats table.
type ChatList struct {
	*tview.Table
	me         string
	conns      []store.Connection
	selectedFn func() (int, int)
}

// NewChatList creates a new chat list table.
func NewChatList() *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Recent Chats ")

	cl := &ChatList{Table: table}
	cl.selectedFn = table.GetSelection
	return cl
}

// SetMe sets the signed-in user id used to pick the partner column.
func (cl *ChatList) SetMe(me string) {
	cl.me = me
}

// Update refreshes the list with new data.
func (cl *ChatList) Update(conns []store.Connection) {
	cl.conns = conns
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Partner").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, c := range conns {
		row := i + 1
		cl.SetCell(row, 0, tview.NewTableCell(" "+c.Other(cl.me)).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+sanitizeForTerminal(c.LastMessage)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(c.UpdatedAt)).SetMaxWidth(12))
	}
}

// SelectedPartner returns the partner id of the selected row.
func (cl *ChatList) SelectedPartner() string {
	row, _ := cl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.conns) {
		return cl.conns[idx].Other(cl.me)
	}
	return ""
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
