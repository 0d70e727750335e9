package cli

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetainSynced срок хранения доставленных записей по умолчанию
const DefaultRetainSynced = 30 * 24 * time.Hour

func (c *Cli) runCleanup(ctx context.Context, args []string) error {
	fs := c.newFlagSet("cleanup")
	olderThan := fs.Duration("older-than", c.retainSynced, "remove synced records older than this")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid arguments: %w. Usage: clinicsync cleanup [--older-than 720h]", err)
	}
	if *olderThan < 0 {
		return fmt.Errorf("--older-than must not be negative")
	}

	removed, err := c.dataService.CleanupSynced(ctx, *olderThan)
	if err != nil {
		return err
	}
	expired, err := c.remote.CleanupCache(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up cache: %w", err)
	}

	c.io.Println("✓ Cleanup completed")
	c.io.Printf("Synced records removed: %d\n", removed)
	c.io.Printf("Expired cache entries:  %d\n", expired)
	return nil
}

func (c *Cli) runRemote(ctx context.Context, args []string) error {
	fs := c.newFlagSet("remote")
	refresh := fs.Bool("refresh", false, "bypass the cache")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid arguments: %w. Usage: clinicsync remote [--refresh] <entity>", err)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: entity. Usage: clinicsync remote [--refresh] <entity>", errMissingArgument)
	}
	entity := fs.Arg(0)

	records, err := c.remote.RemoteRecords(ctx, entity, *refresh)
	if err != nil {
		return err
	}

	c.io.Printf("=== Remote %s ===\n", entity)
	c.io.Println()
	if len(records) == 0 {
		c.io.Println("No records found.")
		return nil
	}
	for i, r := range records {
		c.io.Printf("%d. %s\n", i+1, r.ID)
		c.io.Printf("   Updated: %s\n", r.UpdatedAt.Format(time.RFC3339))
		if len(r.Data) > 0 {
			c.io.Printf("   Data:    %s\n", truncate(string(r.Data), 120))
		}
	}
	return nil
}

func (c *Cli) runDaemon(ctx context.Context) error {
	c.io.Println("Starting sync daemon. Press Ctrl+C to stop.")
	return c.daemon.Run(ctx)
}
