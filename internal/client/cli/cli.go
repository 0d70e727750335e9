// Package cli implements the clinicsync client commands on top of the
// client services.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/iudanet/clinicsync/internal/client/auth"
	"github.com/iudanet/clinicsync/internal/client/data"
	"github.com/iudanet/clinicsync/internal/client/iocli"
	"github.com/iudanet/clinicsync/internal/client/queue"
	"github.com/iudanet/clinicsync/internal/models"
	pkgapi "github.com/iudanet/clinicsync/pkg/api"
)

//go:generate moq -out queue_mock.go . Queue
//go:generate moq -out remote_mock.go . Remote
//go:generate moq -out runner_mock.go . Runner

// Queue is the outbound queue as seen by the operator
type Queue interface {
	Drain(ctx context.Context) (*queue.DrainResult, error)
	Pending(ctx context.Context) ([]*models.QueueItem, error)
	DeadLettered(ctx context.Context) ([]*models.QueueItem, error)
	Requeue(ctx context.Context, id string) (*models.QueueItem, error)
}

// Remote reads server records through the local response cache
type Remote interface {
	RemoteRecords(ctx context.Context, entity string, refresh bool) ([]pkgapi.RecordResponse, error)
	CleanupCache(ctx context.Context) (int, error)
}

// Runner runs the background sync daemon until ctx is done
type Runner interface {
	Run(ctx context.Context) error
}

type Cli struct {
	io          iocli.IO
	authService auth.Service
	dataService data.Service
	queue       Queue
	remote      Remote
	daemon      Runner

	retainSynced time.Duration
}

// Option configures Cli
type Option func(*Cli)

// WithRetainSynced sets the default age for 'cleanup --older-than'
func WithRetainSynced(d time.Duration) Option {
	return func(c *Cli) {
		if d > 0 {
			c.retainSynced = d
		}
	}
}

func New(io iocli.IO, authService auth.Service, dataService data.Service, q Queue, remote Remote, daemon Runner, opts ...Option) *Cli {
	c := &Cli{
		io:           io,
		authService:  authService,
		dataService:  dataService,
		queue:        q,
		remote:       remote,
		daemon:       daemon,
		retainSynced: DefaultRetainSynced,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one command
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return c.runLogin(ctx, args)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "list":
		return c.runList(ctx, args)
	case "appointment":
		return c.runAppointment(ctx, args)
	case "ingest":
		return c.runIngest(ctx, args)
	case "drain":
		return c.runDrain(ctx)
	case "dead-letters":
		return c.runDeadLetters(ctx)
	case "requeue":
		return c.runRequeue(ctx, args)
	case "cleanup":
		return c.runCleanup(ctx, args)
	case "remote":
		return c.runRemote(ctx, args)
	case "run":
		return c.runDaemon(ctx)
	case "help":
		c.PrintUsage()
		return nil
	default:
		c.PrintUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

// newFlagSet создает набор флагов команды; ошибки разбора возвращает Parse
func (c *Cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *Cli) PrintUsage() {
	c.io.Println("ClinicSync Client")
	c.io.Println()
	c.io.Println("Usage:")
	c.io.Println("  clinicsync [OPTIONS] COMMAND [ARGS]")
	c.io.Println()
	c.io.Println("Options:")
	c.io.Println("  --version        Show version information")
	c.io.Println("  --server URL     Server URL (env CLINICSYNC_SERVER)")
	c.io.Println("  --db PATH        Path to local database (env CLINICSYNC_DB)")
	c.io.Println("  --env FILE       Load environment from FILE (default: .env)")
	c.io.Println()
	c.io.Println("Commands:")
	c.io.Println("  login [--token T]          Store the caller token (prompted when omitted)")
	c.io.Println("  logout                     Remove the stored token")
	c.io.Println("  status                     Show identity, queue and storage status")
	c.io.Println("  list [type]                List local records (appointment, user_data, clinic_info, chat_message)")
	c.io.Println("  appointment [flags]        Create an appointment offline and queue it")
	c.io.Println("  ingest [flags] [text]      Create an appointment from an agent reply (text or stdin)")
	c.io.Println("  drain                      Deliver queued writes now")
	c.io.Println("  dead-letters               Show writes that exhausted their retries")
	c.io.Println("  requeue <id>               Return a dead-lettered write to the queue")
	c.io.Println("  cleanup [--older-than D]   Remove old synced records and expired cache entries")
	c.io.Println("  remote [--refresh] <entity> Show server records (cached)")
	c.io.Println("  run                        Run the sync daemon")
	c.io.Println()
	c.io.Println("Examples:")
	c.io.Println("  clinicsync login --token \"$TOKEN\"")
	c.io.Println("  clinicsync appointment --name 'Maria Silva' --phone 11987654321 --date 2024-08-15 --time 14:00")
	c.io.Println("  echo 'Consulta agendada para 15/08/2024 às 14h' | clinicsync ingest --delivery-id msg-42")
	c.io.Println("  clinicsync --server https://sync.example.com run")
}
