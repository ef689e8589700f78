package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/garyjia/claim-review/internal/config"
	"github.com/garyjia/claim-review/internal/container"
	"github.com/garyjia/claim-review/internal/domain/event"
	"go.uber.org/zap"
)

// Isolated check of the configured notification sinks.
// Sends one sample event to each enabled sink directly, without the dispatcher or database.

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	recipient := flag.String("to", "", "recipient: a Lark open_id, or role:<name> for a mapped group chat")
	eventType := flag.String("type", string(event.TypeClaimEscalated), "event type to send")
	flag.Parse()

	fmt.Println("=== Claim Notification Test ===")
	fmt.Println("Sends a sample claim event through every enabled sink")
	fmt.Println()

	if *recipient == "" {
		fmt.Fprintln(os.Stderr, "usage: test-notification -to <open_id|role:name> [-type claim.escalated]")
		os.Exit(2)
	}
	if !event.Type(*eventType).IsValid() {
		log.Fatalf("Unknown event type %q", *eventType)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	sinks, closers := container.ProvideSinks(cfg, logger)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if len(sinks) == 0 {
		log.Fatal("No notification sinks enabled in configuration")
	}

	evt := event.NewEvent(event.Type(*eventType), *recipient, map[string]interface{}{
		event.KeyClaimID:     "test-claim-0001",
		event.KeyEmployeeID:  "emp-test",
		event.KeyAmount:      "1234.50",
		event.KeyCurrency:    "USD",
		event.KeyFraudScore:  62,
		event.KeyLevel:       1,
		event.KeyNewApprover: *recipient,
		event.KeyComment:     "notification test",
	}, time.Now())

	timeout := cfg.Notification.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	failed := 0
	for i, sink := range sinks {
		fmt.Printf("\n[Step %d] Sending via %s...\n", i+1, sink.Name())

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := sink.Send(ctx, evt)
		cancel()

		if err != nil {
			failed++
			fmt.Printf("✗ %s failed: %v\n", sink.Name(), err)
			continue
		}
		fmt.Printf("✓ %s delivered event %s\n", sink.Name(), evt.ID)
	}

	fmt.Println()
	if failed > 0 {
		fmt.Printf("=== %d of %d sinks failed ===\n", failed, len(sinks))
		os.Exit(1)
	}
	fmt.Println("=== All sinks delivered ===")
}
