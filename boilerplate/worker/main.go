package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"hookfeed/boilerplate/worker/controllers"
	"hookfeed/internal"
	"hookfeed/pkg/storage"
	"hookfeed/pkg/worker"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to app config")
	envPath := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	log.SetPrefix("hookfeed/worker-boilerplate ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := internal.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("load env: %v", err)
	}
	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	wk, err := worker.NewFromConfig(cfg.Notify,
		worker.WithLogger(log.Default()),
		worker.WithMiddleware(worker.MiddlewareFromWatermill(middleware.Recoverer)),
	)
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}
	defer func() {
		if err := wk.Close(); err != nil {
			log.Printf("subscriber close: %v", err)
		}
	}()

	wk.HandleAction(storage.ActionPush, controllers.LogEvent)
	wk.HandleAction(storage.ActionPullRequest, controllers.LogEvent)
	wk.HandleAction(storage.ActionMerge, controllers.HandleMerge)

	log.Printf("consuming topics=%v drivers=%v", worker.Topics(cfg.Notify), cfg.Notify.Watermill.Drivers)
	if err := wk.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
