package cli

import (
	"context"
	"fmt"
	"time"
)

func (a *App) Outbox(ctx context.Context) error {
	entries, err := a.store.OutboxEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "Outbox is empty")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("#%d  %s", e.Key, oneLine(e.Payload.Description, 50))
		if e.Attempts > 0 {
			line += fmt.Sprintf("  attempts=%d", e.Attempts)
			if !e.NextAttemptAt.IsZero() {
				line += " next=" + e.NextAttemptAt.Format(time.TimeOnly)
			}
			if e.LastError != "" {
				line += " error=" + oneLine(e.LastError, 40)
			}
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	report, err := a.syncer.SyncOutbox(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, report.String())
	return nil
}

func (a *App) Status(ctx context.Context) error {
	mode := "unknown"
	if a.watcher != nil && a.watcher.Mode() != "" {
		mode = string(a.watcher.Mode())
	}
	user := "not logged in"
	if a.userName != "" {
		user = a.userName
	}

	n, err := a.store.OutboxCount(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "mode: %s, user: %s, outbox: unavailable\n", mode, user)
		return err
	}
	fmt.Fprintf(a.out, "mode: %s, user: %s, outbox: %d pending\n", mode, user, n)
	return nil
}
