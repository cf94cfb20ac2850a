package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/sitecrawl"
	"github.com/fwojciec/sitecrawl/config"
	"github.com/fwojciec/sitecrawl/fs"
	"github.com/fwojciec/sitecrawl/redis"
	scslog "github.com/fwojciec/sitecrawl/slog"
	"github.com/fwojciec/sitecrawl/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Base state directory. Set before calling Run(); --state-dir overrides it.
	StateDir string

	// Storage opened by Run.
	StateDB *sqlite.DB
	PageDB  *sqlite.DB
	Redis   *redis.StateStore
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{StateDir: config.XDGStateDir()}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	var errs []error
	if m.StateDB != nil {
		errs = append(errs, m.StateDB.Close())
	}
	if m.PageDB != nil && m.PageDB != m.StateDB {
		errs = append(errs, m.PageDB.Close())
	}
	if m.Redis != nil {
		errs = append(errs, m.Redis.Close())
	}
	return errors.Join(errs...)
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("sitecrawl"),
		kong.Description("Crawl a single domain politely and resumably."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps, m),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'sitecrawl --help' to see available commands")
	}

	if args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	level, err := scslog.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	handler, err := scslog.NewHandler(stderr, cli.LogFormat, level)
	if err != nil {
		return err
	}
	deps.Logger = slog.New(handler)

	if cli.StateDir != "" {
		m.StateDir = cli.StateDir
	}
	defer m.Close()

	var flags *StateFlags
	switch commandName(kongCtx) {
	case "crawl":
		flags = &cli.Crawl.StateFlags
		if cli.Crawl.DB != "" {
			if err := m.openPageDB(cli.Crawl.DB, cli.Crawl.StateDB); err != nil {
				return err
			}
		}
	case "pending":
		flags = &cli.Pending.StateFlags
	case "reset":
		flags = &cli.Reset.StateFlags
	case "pages":
		if err := m.openPageDB(cli.Pages.DB, ""); err != nil {
			return err
		}
		deps.Pages = sqlite.NewPageService(m.PageDB)
	}

	if flags != nil {
		if err := m.openState(ctx, deps, flags, stderr); err != nil {
			return err
		}
	}

	return kongCtx.Run(deps)
}

func commandName(kongCtx *kong.Context) string {
	name, _, _ := strings.Cut(kongCtx.Command(), " ")
	return name
}

// openState resolves the domain and opens the selected state backend.
func (m *Main) openState(ctx context.Context, deps *Dependencies, flags *StateFlags, stderr io.Writer) error {
	domain, err := config.NormalizeDomain(flags.Domain)
	if err != nil {
		return fmt.Errorf("invalid domain %q: %w", flags.Domain, err)
	}
	deps.Domain = domain
	deps.StateDir = config.DomainStateDir(m.StateDir, domain)

	switch {
	case flags.StateDB != "" && flags.RedisAddr != "":
		return sitecrawl.Errorf(sitecrawl.EINVALID, "--state-db and --redis-addr cannot be used together")

	case flags.StateDB != "":
		if m.StateDB == nil {
			m.StateDB = sqlite.NewDB(flags.StateDB)
			if err := m.StateDB.Open(); err != nil {
				m.StateDB = nil
				return fmt.Errorf("failed to open state database at %q: %w", flags.StateDB, err)
			}
		}
		deps.State = sqlite.NewStateStore(m.StateDB)

	case flags.RedisAddr != "":
		m.Redis = redis.NewStateStore(flags.RedisAddr, redis.KeyPrefix(config.Host(domain)))
		if err := m.Redis.Ping(ctx); err != nil {
			fmt.Fprintln(stderr, "Hint: check that Redis is running and reachable")
			return fmt.Errorf("failed to connect to redis at %q: %w", flags.RedisAddr, err)
		}
		deps.State = m.Redis

	default:
		deps.State = fs.NewStateStore(deps.StateDir)
	}
	return nil
}

// openPageDB opens the page database, sharing the state database when both
// flags name the same file.
func (m *Main) openPageDB(path, statePath string) error {
	m.PageDB = sqlite.NewDB(path)
	if err := m.PageDB.Open(); err != nil {
		m.PageDB = nil
		return fmt.Errorf("failed to open page database at %q: %w", path, err)
	}
	if path == statePath {
		m.StateDB = m.PageDB
	}
	return nil
}
