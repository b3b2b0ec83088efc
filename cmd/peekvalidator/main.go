// Grounded on the teacher's main.go: flag parsing, config loading, key
// loading, debug-gated logging via io.Discard, pool construction with
// nostr.WithAuthHandler — minus the TUI program loop, since this is a
// headless background service (spec.md §1 Non-goals: no terminal surface).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/peek-community/validator/internal/config"
	"github.com/peek-community/validator/internal/engine"
	"github.com/peek-community/validator/internal/listener"
	"github.com/peek-community/validator/internal/mutator"
	"github.com/peek-community/validator/internal/nostrkey"
	"github.com/peek-community/validator/internal/registry"
	"github.com/peek-community/validator/internal/relayclient"
)

func main() {
	configFlag := flag.String("config", "", "path to config file")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *debugFlag || cfg.LogDebug {
		log.Println("debug logging enabled")
	} else {
		log.SetOutput(io.Discard)
	}
	log.Printf("config loaded: relay=%s public_relay=%s", cfg.RelayURL, cfg.PublicRelayURL)

	relaySecret, err := nostrkey.ParseSecret(cfg.RelaySecretKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay_secret_key error: %v\n", err)
		os.Exit(1)
	}
	serviceSecret, err := nostrkey.ParseSecret(cfg.ServiceSecretKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "service_secret_key error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := relayclient.Connect(ctx, []string{cfg.RelayURL}, relaySecret)
	defer client.Close()

	reg := registry.New(client)
	mut := mutator.New(client, relaySecret, cfg.PublishTimeout())
	eng := engine.New(reg, mut, cfg.PublicRelayURL, engine.Timeouts{
		Query: cfg.QueryTimeout(),
	})

	lst, err := listener.New(client, serviceSecret, eng, cfg.HandlerConcurrency, cfg.PublishTimeout(), cfg.HandlerTimeout())
	if err != nil {
		fmt.Fprintf(os.Stderr, "listener error: %v\n", err)
		os.Exit(1)
	}

	servicePub, _ := serviceSecret.Derive()
	log.Printf("listening for gift-wrapped requests to %s", servicePub.Hex())

	lst.Run(ctx)

	log.Println("shutdown complete")
}
