package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/clinicsync/internal/models"
)

var errMissingArgument = errors.New("missing argument")

func (c *Cli) runDrain(ctx context.Context) error {
	c.io.Println("=== Drain ===")
	c.io.Println()

	result, err := c.queue.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain failed: %w", err)
	}
	if result.Skipped {
		c.io.Println("Another drain is already running.")
		return nil
	}

	c.io.Printf("Attempted:     %d\n", result.Attempted)
	c.io.Printf("Delivered:     %d\n", result.Delivered)
	c.io.Printf("Failed:        %d\n", result.Failed)
	if result.DeadLettered > 0 {
		c.io.Printf("Dead-lettered: %d\n", result.DeadLettered)
	}
	c.io.Println()

	pending, err := c.queue.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending writes: %w", err)
	}
	if len(pending) == 0 {
		c.io.Println("✓ Queue is empty")
	} else {
		c.io.Printf("⚠️  %d write(s) still waiting; they will be retried.\n", len(pending))
	}
	return nil
}

func (c *Cli) runDeadLetters(ctx context.Context) error {
	items, err := c.queue.DeadLettered(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	c.io.Println("=== Dead Letters ===")
	c.io.Println()

	if len(items) == 0 {
		c.io.Println("No dead-lettered writes.")
		return nil
	}

	for i, item := range items {
		printQueueItem(c, i+1, item)
	}
	c.io.Println("Use 'clinicsync requeue <id>' to retry a write.")
	return nil
}

func (c *Cli) runRequeue(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: queue item ID. Usage: clinicsync requeue <id>", errMissingArgument)
	}

	item, err := c.queue.Requeue(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to requeue %s: %w", args[0], err)
	}

	c.io.Printf("✓ Write %s returned to the queue (%s %s)\n", item.ID, item.Method, item.Endpoint)
	return nil
}

func printQueueItem(c *Cli, n int, item *models.QueueItem) {
	c.io.Printf("%d. %s %s\n", n, item.Method, item.Endpoint)
	c.io.Printf("   ID:       %s\n", item.ID)
	if item.RecordID != "" {
		c.io.Printf("   Record:   %s\n", item.RecordID)
	}
	c.io.Printf("   Attempts: %d/%d\n", item.RetryCount, item.MaxRetries)
	c.io.Printf("   Queued:   %s\n", item.EnqueuedAt.Format(time.RFC3339))
	if item.LastError != "" {
		c.io.Printf("   Error:    %s\n", item.LastError)
	}
	c.io.Println()
}
