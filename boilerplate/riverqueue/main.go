package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hookfeed/pkg/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

var jobKind = "hookfeed.event"

// EventArgs are the job args written by the riverqueue notification driver: the
// stored event record as JSON.
type EventArgs struct {
	storage.EventRecord
}

func (EventArgs) Kind() string { return jobKind }

type EventWorker struct {
	river.WorkerDefaults[EventArgs]
}

func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventArgs]) error {
	log.Printf("job=%d queue=%s action=%s id=%s %s",
		job.ID, job.Queue, job.Args.Action, job.Args.ID, job.Args.FormattedMessage)
	return nil
}

func main() {
	dsn := flag.String("dsn", os.Getenv("RIVER_DSN"), "Postgres DSN")
	queue := flag.String("queue", "default", "River queue")
	kind := flag.String("kind", jobKind, "River job kind")
	maxWorkers := flag.Int("max-workers", 5, "Max workers for the queue")
	flag.Parse()

	log.SetPrefix("hookfeed/riverqueue-worker ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	jobKind = *kind

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbPool.Close()

	workers := river.NewWorkers()
	river.AddWorker(workers, &EventWorker{})

	client, err := river.NewClient(riverpgxv5.New(dbPool), &river.Config{
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
		Queues: map[string]river.QueueConfig{
			*queue: {MaxWorkers: *maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		log.Fatalf("river client: %v", err)
	}

	if err := client.Start(ctx); err != nil {
		log.Fatalf("river start: %v", err)
	}

	<-ctx.Done()
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := client.Stop(stopCtx); err != nil {
		log.Printf("river stop: %v", err)
	}
}
