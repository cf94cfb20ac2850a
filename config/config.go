// Package config holds crawl settings, their defaults and the extractor
// rules file.
package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitecrawl"

	// DefaultSeed is the path the crawl starts from.
	DefaultSeed = "/"

	// DefaultRunLimit is the number of transfers in flight at once.
	DefaultRunLimit = 4

	// DefaultReqPerInterval and DefaultReqIntervalGap allow one request every
	// three seconds.
	DefaultReqPerInterval = 1
	DefaultReqIntervalGap = 3 * time.Second

	// DefaultPollTimeout bounds how long the scheduler waits on the transport.
	DefaultPollTimeout = time.Second

	DefaultTimeout     = 30 * time.Second
	DefaultMaxBodySize = 10 << 20 // 10MB
	DefaultUserAgent   = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

	// CookieFile is the cookie jar file name inside a domain's state directory.
	CookieFile = "cookies.json"

	// StateDirEnv overrides the base state directory.
	StateDirEnv = "SITECRAWL_STATE_DIR"
)

// Config holds the settings of one crawl.
type Config struct {
	// Domain is the normalized scheme and host, e.g. "http://forum.example".
	Domain string

	// Seeds are paths or same-domain URLs enqueued at start.
	Seeds []string

	// RunLimit caps concurrent transfers.
	RunLimit int

	// ReqPerInterval requests are admitted per ReqIntervalGap. Zero for
	// either disables throttling.
	ReqPerInterval int
	ReqIntervalGap time.Duration

	PollTimeout time.Duration
	Timeout     time.Duration
	UserAgent   string
	MaxBodySize int64

	// StateDir holds the resumable state and cookie jar of this domain.
	StateDir string

	// ForgetVisited ignores URLs visited by earlier runs.
	ForgetVisited bool

	// Sitemap seeds the crawl from the domain's sitemaps.
	Sitemap bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Seeds:          []string{DefaultSeed},
		RunLimit:       DefaultRunLimit,
		ReqPerInterval: DefaultReqPerInterval,
		ReqIntervalGap: DefaultReqIntervalGap,
		PollTimeout:    DefaultPollTimeout,
		Timeout:        DefaultTimeout,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Domain == "" {
		return ErrNoDomain
	}
	if _, err := NormalizeDomain(c.Domain); err != nil {
		return err
	}
	if c.RunLimit <= 0 {
		return ErrInvalidRunLimit
	}
	if c.ReqPerInterval < 0 || c.ReqIntervalGap < 0 {
		return ErrInvalidRateLimit
	}
	if c.PollTimeout <= 0 {
		return ErrInvalidPollTimeout
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}

// CookiePath returns the cookie jar file of the crawl.
func (c *Config) CookiePath() string {
	return filepath.Join(c.StateDir, CookieFile)
}

// NormalizeDomain reduces raw to a lowercase scheme and host. A missing
// scheme defaults to http.
//
//	forum.example/index.php → http://forum.example
func NormalizeDomain(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoDomain
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidDomain
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidDomain
	}
	return scheme + "://" + strings.ToLower(u.Host), nil
}

// Host returns the host of a normalized domain.
func Host(domain string) string {
	_, host, _ := strings.Cut(domain, "://")
	return host
}

// XDGStateDir returns the XDG state directory for sitecrawl.
// On Linux: ~/.local/state/sitecrawl
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DomainStateDir returns the directory holding state for domain under base.
// The port separator is replaced so the name is valid on every platform.
func DomainStateDir(base, domain string) string {
	return filepath.Join(base, strings.ReplaceAll(Host(domain), ":", "_"))
}
