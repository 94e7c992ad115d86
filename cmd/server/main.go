package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"emberfall/server/internal/app"
	"emberfall/server/internal/remed"
	"emberfall/server/internal/world"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	worldKind := flag.String("world", string(world.KindTopDown), "boot world kind (top-down or side-scroller)")
	checkpoint := flag.String("checkpoint", "", "sqlite checkpoint path (empty disables persistence)")
	remediationURL := flag.String("remediation-url", "", "base URL of the elimination authority")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := app.Config{
		Addr:           *addr,
		World:          world.Config{Kind: world.Kind(*worldKind)},
		CheckpointPath: *checkpoint,
		Remediation:    remed.Config{BaseURL: *remediationURL},
	}

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
