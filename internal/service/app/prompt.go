package app

import (
	"context"
	"fmt"

	"github.com/rivo/tview"
	"go.uber.org/zap"

	"tofu_chat/internal/protocol/tofu"
	"tofu_chat/internal/service/resolver"
	"tofu_chat/internal/utils/log"
)

const (
	pageTrust    = "trust"
	pageConflict = "conflict"
	pageMismatch = "mismatch"
)

// Decide asks the user whether to trust a first-contact fingerprint. It blocks
// until the user answers or ctx ends; it must not run on the UI goroutine.
func (c *App) Decide(ctx context.Context, peer, fp string) (tofu.Decision, error) {
	answer := make(chan tofu.Decision, 1)

	c.app.QueueUpdateDraw(func() {
		modal := tview.NewModal().
			SetText(trustPrompt(peer, fp)).
			AddButtons([]string{"Trust", "Reject"}).
			SetDoneFunc(func(_ int, label string) {
				c.pages.RemovePage(pageTrust)
				c.app.SetFocus(c.input)
				if label == "Trust" {
					answer <- tofu.Accept
					return
				}
				answer <- tofu.Reject
			})
		c.pages.AddPage(pageTrust, modal, false, true)
		c.app.SetFocus(modal)
	})

	select {
	case d := <-answer:
		log.Info("trust decision", zap.String("peer", peer), zap.String("fingerprint", fp), zap.Bool("accepted", d == tofu.Accept))
		return d, nil
	case <-ctx.Done():
		c.app.QueueUpdateDraw(func() { c.pages.RemovePage(pageTrust) })
		return tofu.Reject, ctx.Err()
	}
}

// Conflict warns about a changed fingerprint. It returns immediately.
func (c *App) Conflict(peer, stored, observed string) {
	c.warn(pageConflict, conflictWarning(peer, stored, observed))
}

// DirectoryMismatch warns that the directory served a key contradicting its
// own fingerprint. It returns immediately.
func (c *App) DirectoryMismatch(peer, reported, computed string) {
	c.warn(pageMismatch, mismatchWarning(peer, reported, computed))
}

func (c *App) warn(page, text string) {
	c.app.QueueUpdateDraw(func() {
		modal := tview.NewModal().
			SetText(text).
			AddButtons([]string{"OK"}).
			SetDoneFunc(func(int, string) {
				c.pages.RemovePage(page)
				c.app.SetFocus(c.input)
			})
		c.pages.AddPage(page, modal, false, true)
		c.app.SetFocus(modal)
	})
}

func trustPrompt(peer, fp string) string {
	return fmt.Sprintf("First contact with %s.\n\nFingerprint:\n%s\n\nCompare it with %s over another channel. Trust this key?",
		peer, fp, peer)
}

func conflictWarning(peer, stored, observed string) string {
	return fmt.Sprintf("SECURITY WARNING\n\nThe key of %s has changed.\n\nPinned:\n%s\n\nNow:\n%s\n\n"+
		"Messages to %s are blocked. Run `tofuchat trust reset %s` only after verifying the new fingerprint.",
		peer, stored, observed, peer, peer)
}

func mismatchWarning(peer, reported, computed string) string {
	return fmt.Sprintf("SECURITY WARNING\n\nThe directory served a key for %s that does not match the fingerprint it reported.\n\n"+
		"Reported:\n%s\n\nKey:\n%s\n\nNothing was pinned and messages to %s are blocked.",
		peer, reported, computed, peer)
}

var (
	_ tofu.Policy      = (*App)(nil)
	_ tofu.Alerter     = (*App)(nil)
	_ resolver.Alerter = (*App)(nil)
)
