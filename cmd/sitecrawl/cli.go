package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/sitecrawl"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Domain is the normalized domain of the selected command, if any.
	Domain string

	// StateDir holds the domain's state files and cookie jar.
	StateDir string

	State sitecrawl.StateStore
	Pages PageLister
}

// PageLister lists stored pages.
type PageLister interface {
	FindPages(ctx context.Context, filter sitecrawl.PageFilter) ([]*sitecrawl.Page, error)
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	LogLevel  string `default:"info" enum:"trace,debug,info,warn,error" help:"Log level (trace, debug, info, warn, error)"`
	LogFormat string `default:"text" enum:"text,json,pretty" help:"Log format (text, json, pretty)"`
	StateDir  string `type:"path" env:"SITECRAWL_STATE_DIR" help:"Base directory for crawl state"`

	Crawl   CrawlCmd   `cmd:"" help:"Run or resume a crawl of a domain"`
	Pending PendingCmd `cmd:"" help:"Print the persisted pending queue"`
	Reset   ResetCmd   `cmd:"" help:"Clear persisted queue and visited state"`
	Pages   PagesCmd   `cmd:"" help:"List pages saved to a page database"`
}

// StateFlags select the domain and where its crawl state lives. Without
// --state-db or --redis-addr, state is kept in JSON files under the state
// directory.
type StateFlags struct {
	Domain    string `arg:"" help:"Domain to crawl, e.g. forum.example or https://forum.example"`
	StateDB   string `type:"path" name:"state-db" help:"Keep crawl state in this SQLite database"`
	RedisAddr string `name:"redis-addr" help:"Keep crawl state in Redis at host:port"`
}

// CrawlCmd is the "crawl" subcommand.
type CrawlCmd struct {
	StateFlags

	Seed          []string      `default:"/" help:"Path or URL to start from (repeatable)"`
	RunLimit      int           `default:"4" help:"Concurrent fetch limit"`
	ReqPerInt     int           `name:"req-per-int" default:"1" help:"Requests admitted per interval (0 disables throttling)"`
	ReqIntGap     time.Duration `name:"req-int-gap" default:"3s" help:"Length of the rate limiting interval"`
	PollTimeout   time.Duration `default:"1s" help:"Maximum wait for a transfer to complete before re-checking the queue"`
	Timeout       time.Duration `default:"30s" help:"Per-request timeout"`
	UserAgent     string        `help:"User-Agent header (default: desktop Firefox)"`
	MaxBodySize   int64         `default:"10485760" help:"Maximum response body size in bytes"`
	Rules         string        `type:"existingfile" help:"YAML extractor rules file"`
	Raw           bool          `help:"Save raw HTML instead of extracted Markdown"`
	DB            string        `type:"path" help:"Save pages to this SQLite database"`
	OutDir        string        `type:"path" help:"Save pages as Markdown files under this directory"`
	KafkaBroker   string        `help:"Publish pages to this Kafka broker"`
	KafkaTopic    string        `default:"sitecrawl.pages" help:"Kafka topic for published pages"`
	Sitemap       bool          `help:"Seed the crawl from the domain's sitemaps"`
	ForgetVisited bool          `help:"Re-fetch pages visited by earlier runs"`
}

// PendingCmd is the "pending" subcommand.
type PendingCmd struct {
	StateFlags
}

// ResetCmd is the "reset" subcommand.
type ResetCmd struct {
	StateFlags

	Cookies bool `help:"Also remove the saved cookie jar"`
}

// PagesCmd is the "pages" subcommand.
type PagesCmd struct {
	DB        string `type:"existingfile" required:"" help:"SQLite page database"`
	Extractor string `help:"Only list pages saved by this rule"`
	Prefix    string `help:"Only list pages whose URL starts with this prefix"`
	Limit     int    `default:"50" help:"Maximum number of pages to list (0 for all)"`
}
