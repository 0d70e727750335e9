package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/iudanet/clinicsync/internal/client/data"
	"github.com/iudanet/clinicsync/internal/models"
)

func (c *Cli) runList(ctx context.Context, args []string) error {
	var t models.RecordType
	if len(args) > 0 {
		t = models.RecordType(args[0])
		if !t.Valid() {
			return fmt.Errorf("unknown record type: %s. Use: %s", args[0], recordTypeNames())
		}
	}

	records, err := c.dataService.GetOfflineData(ctx, t)
	if err != nil {
		return err
	}

	c.io.Println("=== Local Records ===")
	c.io.Println()

	if len(records) == 0 {
		c.io.Println("No records found.")
		return nil
	}

	c.io.Printf("Found %d record(s):\n", len(records))
	c.io.Println()
	for i, r := range records {
		status := "pending"
		if r.Synced {
			status = "synced"
		}
		c.io.Printf("%d. [%s] %s\n", i+1, r.Type, describePayload(r.Payload))
		c.io.Printf("   ID:       %s\n", r.ID)
		c.io.Printf("   Created:  %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
		c.io.Printf("   Priority: %s\n", r.Priority)
		c.io.Printf("   Status:   %s\n", status)
		c.io.Println()
	}
	return nil
}

func (c *Cli) runAppointment(ctx context.Context, args []string) error {
	var in data.AppointmentInput
	fs := c.newFlagSet("appointment")
	fs.StringVar(&in.Name, "name", "", "patient name")
	fs.StringVar(&in.Phone, "phone", "", "patient phone")
	fs.StringVar(&in.Date, "date", "", "date, YYYY-MM-DD")
	fs.StringVar(&in.Time, "time", "", "time, HH:MM")
	fs.StringVar(&in.Clinic, "clinic", "", "clinic or branch")
	fs.StringVar(&in.Service, "service", "", "service")
	fs.StringVar(&in.Notes, "notes", "", "notes")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid arguments: %w. Usage: clinicsync appointment --name N --phone P --date YYYY-MM-DD --time HH:MM", err)
	}
	in.Source = "ui"

	record, err := c.dataService.CreateAppointment(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	c.io.Println("✓ Appointment saved offline and queued for delivery")
	c.io.Printf("ID: %s\n", record.ID)
	return nil
}

func (c *Cli) runIngest(ctx context.Context, args []string) error {
	var msg data.AgentMessage
	fs := c.newFlagSet("ingest")
	fs.StringVar(&msg.DeliveryID, "delivery-id", "", "message delivery id")
	fs.StringVar(&msg.CallerPhone, "phone", "", "caller phone, used when the text has none")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid arguments: %w. Usage: clinicsync ingest [--delivery-id ID] [--phone P] [text]", err)
	}

	msg.Text = strings.Join(fs.Args(), " ")
	if msg.Text == "" {
		if c.io.IsInteractive() {
			return fmt.Errorf("missing message text. Pass it as arguments or on stdin")
		}
		text, err := c.io.ReadAll()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		msg.Text = text
	}
	if msg.Text == "" {
		return fmt.Errorf("message text cannot be empty")
	}

	result, err := c.dataService.IngestAgentMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to ingest message: %w", err)
	}

	switch {
	case !result.Parsed.IsAppointment:
		c.io.Println("Message is not an appointment confirmation. Nothing saved.")
	case result.Duplicate:
		c.io.Println("✓ Appointment already recorded for this message")
		if result.Record != nil {
			c.io.Printf("ID: %s\n", result.Record.ID)
		} else {
			c.io.Println("Record was delivered and cleaned up")
		}
	default:
		c.io.Println("✓ Appointment extracted and queued for delivery")
		c.io.Printf("ID: %s\n", result.Record.ID)
	}
	if result.Parsed.IsAppointment {
		p := result.Parsed
		c.io.Printf("Name: %s  Phone: %s  Date: %s  Time: %s\n", orDash(p.Name), orDash(p.Phone), orDash(p.Date), orDash(p.Time))
	}
	return nil
}

func describePayload(p models.Payload) string {
	switch v := p.(type) {
	case models.AppointmentPayload:
		return fmt.Sprintf("%s, %s %s", orDash(v.Name), v.Date, v.Time)
	case models.UserDataPayload:
		return fmt.Sprintf("user %s", v.UserID)
	case models.ClinicInfoPayload:
		return v.Name
	case models.ChatMessagePayload:
		return fmt.Sprintf("%s: %s", v.Role, truncate(v.Content, 60))
	default:
		return ""
	}
}

func recordTypeNames() string {
	names := make([]string, len(models.RecordTypes))
	for i, t := range models.RecordTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
