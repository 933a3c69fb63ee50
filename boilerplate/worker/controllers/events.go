package controllers

import (
	"context"
	"log"

	"hookfeed/pkg/worker"
)

// LogEvent prints the formatted message of every record it receives.
func LogEvent(ctx context.Context, evt *worker.Event) error {
	log.Printf("topic=%s action=%s id=%s %s", evt.Topic, evt.Action, evt.Record.ID, evt.Record.FormattedMessage)
	return nil
}

// HandleMerge is called for merge records that no topic handler claimed.
func HandleMerge(ctx context.Context, evt *worker.Event) error {
	log.Printf("merged %s into %s by %s", evt.Record.FromBranch, evt.Record.ToBranch, evt.Record.Author)
	return nil
}
