package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/clinicsync/internal/client/auth"
)

func (c *Cli) runLogin(ctx context.Context, args []string) error {
	fs := c.newFlagSet("login")
	token := fs.String("token", "", "caller access token (JWT)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid arguments: %w. Usage: clinicsync login [--token T]", err)
	}

	c.io.Println("=== Login ===")
	c.io.Println()

	if *token == "" {
		t, err := c.io.ReadPassword("Access token: ")
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		*token = t
	}
	if *token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	identity, err := c.authService.Login(ctx, *token)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	c.io.Println("✓ Token stored")
	c.io.Printf("User ID: %s\n", identity.UserID)
	if identity.Phone != "" {
		c.io.Printf("Phone:   %s\n", identity.Phone)
	}
	if !identity.ExpiresAt.IsZero() {
		c.io.Printf("Expires: %s\n", identity.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func (c *Cli) runLogout(ctx context.Context) error {
	if err := c.authService.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	c.io.Println("✓ Logged out")
	return nil
}

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Println()

	identity, err := c.authService.Identity(ctx)
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		c.io.Println("Identity: Not authenticated")
		c.io.Println("Run 'clinicsync login' to store a token.")
	case err != nil:
		return fmt.Errorf("failed to get identity: %w", err)
	default:
		c.io.Printf("Identity: %s\n", identity.UserID)
		if !identity.ExpiresAt.IsZero() {
			remaining := time.Until(identity.ExpiresAt)
			if remaining > 0 {
				c.io.Printf("Token expires: %s (in %s)\n", identity.ExpiresAt.Format(time.RFC3339), remaining.Round(time.Second))
			} else {
				c.io.Println("⚠️  Token has expired. Please login again.")
			}
		}
	}
	c.io.Println()

	stats, err := c.dataService.GetStorageStats(ctx)
	if err != nil {
		return err
	}

	c.io.Printf("Records:        %d (%d unsynced)\n", stats.Records, stats.UnsyncedRecords)
	for _, t := range sortedKeys(stats.RecordsByType) {
		c.io.Printf("  %-14s %d\n", t+":", stats.RecordsByType[t])
	}
	c.io.Printf("Queue:          %d item(s)\n", stats.QueueItems)
	c.io.Printf("Dead-lettered:  %d\n", stats.DeadLettered)
	if stats.Exhausted > 0 {
		c.io.Printf("Exhausted:      %d\n", stats.Exhausted)
	}
	c.io.Printf("Cache entries:  %d (%d expired)\n", stats.CacheEntries, stats.ExpiredCache)
	c.io.Printf("Database size:  %d bytes\n", stats.SizeBytes)
	c.io.Println()

	switch {
	case stats.DeadLettered > 0:
		c.io.Println("⚠️  Some writes were dead-lettered. Run 'clinicsync dead-letters' to review them.")
	case stats.QueueItems > 0:
		c.io.Printf("⚠️  Pending sync: %d write(s) waiting to be delivered\n", stats.QueueItems)
		c.io.Println("Run 'clinicsync drain' to deliver them now.")
	default:
		c.io.Println("✓ All writes delivered")
	}
	return nil
}
