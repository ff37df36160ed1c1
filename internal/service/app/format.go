package app

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"tofu_chat/internal/errs"
	"tofu_chat/internal/model"
)

const undecryptable = "[decrypt failed]"

func formatMessage(me string, msg model.DisplayMessage) string {
	ts := ""
	if msg.CreatedAt != nil {
		ts = msg.CreatedAt.Local().Format(time.TimeOnly) + " "
	}

	color := "green"
	if msg.From == me {
		color = "yellow"
	}
	header := fmt.Sprintf("[gray]%s[-][%s]%s → %s[-]", ts, color, tview.Escape(msg.From), tview.Escape(msg.To))

	if msg.Undecryptable {
		return fmt.Sprintf("%s: [red]%s[-]", header, tview.Escape(undecryptable))
	}
	return fmt.Sprintf("%s: %s", header, tview.Escape(msg.Text))
}

func formatFailure(peer string, err error) string {
	if peer == "" {
		return fmt.Sprintf("[red]! %s[-]", tview.Escape(errs.Describe(err)))
	}
	return fmt.Sprintf("[red]! to %s: %s[-]", tview.Escape(peer), tview.Escape(errs.Describe(err)))
}
