package views

import (
	"github.com/rivo/tview"
)

// LoginView is the email/password sign-in form.
type LoginView struct {
	*tview.Flex
	form     *tview.Form
	status   *tview.TextView
	onSubmit func(email, password string)
}

// NewLoginView creates the sign-in form.
func NewLoginView() *LoginView {
	lv := &LoginView{}

	lv.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	lv.form = tview.NewForm().
		AddInputField("Email", "", 40, nil, nil).
		AddPasswordField("Password", "", 40, '*', nil).
		AddButton("Sign In", func() {
			if lv.onSubmit != nil {
				lv.onSubmit(lv.email(), lv.password())
			}
		})
	lv.form.SetBorder(true).SetTitle(" Sign In ")

	lv.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(lv.form, 60, 0, true).
			AddItem(nil, 0, 1, false), 11, 0, true).
		AddItem(lv.status, 1, 0, false).
		AddItem(nil, 0, 1, false)

	return lv
}

// SetOnSubmit sets the sign-in callback.
func (lv *LoginView) SetOnSubmit(fn func(email, password string)) {
	lv.onSubmit = fn
}

// ShowStatus displays a status line under the form.
func (lv *LoginView) ShowStatus(msg string) {
	lv.status.Clear()
	_, _ = lv.status.Write([]byte(msg))
}

// Form returns the focusable form primitive.
func (lv *LoginView) Form() *tview.Form { return lv.form }

func (lv *LoginView) email() string {
	return lv.form.GetFormItemByLabel("Email").(*tview.InputField).GetText()
}

func (lv *LoginView) password() string {
	return lv.form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
}
