package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"tofu_chat/internal/cryptographic/fingerprint"
	"tofu_chat/internal/model"
	"tofu_chat/internal/utils/log"
)

type (
	// Sender is the part of the session the UI drives.
	Sender interface {
		Send(ctx context.Context, peer, text string) error
	}

	App struct {
		app     *tview.Application
		pages   *tview.Pages
		roster  *tview.List
		chatbox *tview.TextView
		input   *tview.InputField
		status  *tview.TextView

		me     string
		sender Sender

		mu   sync.Mutex
		peer string
	}
)

func NewApp(me string) *App {
	c := &App{
		app: tview.NewApplication(),
		me:  me,
	}
	c.build()
	return c
}

// SetSender wires the session. Must be called before Run.
func (c *App) SetSender(s Sender) {
	c.sender = s
}

func (c *App) build() {
	c.roster = tview.NewList().ShowSecondaryText(false)
	c.roster.SetBorder(true).SetTitle(" Online ")
	c.roster.SetSelectedFunc(func(_ int, name, _ string, _ rune) {
		c.selectPeer(name)
		c.app.SetFocus(c.input)
	})

	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(" Messages ")

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" Select a peer ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		peer := c.selected()
		if text == "" || peer == "" {
			return
		}
		c.input.SetText("")

		go func(peer, msg string) {
			// Failures reach the chat box through SendFailed.
			_ = c.sender.Send(context.Background(), peer, msg)
		}(peer, text)
	})

	c.status = tview.NewTextView().SetDynamicColors(true)

	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	body := tview.NewFlex().
		AddItem(c.roster, 24, 0, false).
		AddItem(right, 0, 1, true)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(c.status, 1, 0, false)

	c.pages = tview.NewPages().AddPage("main", layout, true, true)

	c.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyTab && !c.modalOpen() {
			if c.roster.HasFocus() {
				c.app.SetFocus(c.input)
			} else {
				c.app.SetFocus(c.roster)
			}
			return nil
		}
		return ev
	})
}

func (c *App) modalOpen() bool {
	front, _ := c.pages.GetFrontPage()
	return front != "main"
}

func (c *App) selectPeer(name string) {
	c.mu.Lock()
	c.peer = name
	c.mu.Unlock()
	c.input.SetTitle(fmt.Sprintf(" To %s ", name))
}

func (c *App) selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// SetFingerprint shows the local fingerprint in the status bar.
func (c *App) SetFingerprint(fp string) {
	c.app.QueueUpdateDraw(func() {
		c.status.SetText(fmt.Sprintf(" %s  [gray]fingerprint[-] %s", tview.Escape(c.me), fingerprint.Short(fp)))
	})
}

// Run blocks until the UI exits.
func (c *App) Run() error {
	if err := c.app.SetRoot(c.pages, true).SetFocus(c.input).Run(); err != nil {
		log.Error("ui stopped", zap.Error(err))
		return err
	}
	return nil
}

func (c *App) Stop() {
	c.app.Stop()
}

func (c *App) Roster(users []string) {
	c.app.QueueUpdateDraw(func() {
		current := c.selected()
		c.roster.Clear()
		for _, u := range users {
			c.roster.AddItem(u, "", 0, nil)
			if u == current {
				c.roster.SetCurrentItem(c.roster.GetItemCount() - 1)
			}
		}
	})
}

func (c *App) Message(msg model.DisplayMessage) {
	line := formatMessage(c.me, msg)
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintln(c.chatbox, line)
		c.chatbox.ScrollToEnd()
	})
}

func (c *App) SendFailed(peer string, err error) {
	line := formatFailure(peer, err)
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintln(c.chatbox, line)
		c.chatbox.ScrollToEnd()
	})
}
