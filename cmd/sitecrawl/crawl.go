package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/fwojciec/sitecrawl"
	"github.com/fwojciec/sitecrawl/config"
	"github.com/fwojciec/sitecrawl/crawl"
	"github.com/fwojciec/sitecrawl/fs"
	"github.com/fwojciec/sitecrawl/goquery"
	"github.com/fwojciec/sitecrawl/htmltomarkdown"
	sitecrawlhttp "github.com/fwojciec/sitecrawl/http"
	"github.com/fwojciec/sitecrawl/kafka"
	"github.com/fwojciec/sitecrawl/readability"
	scslog "github.com/fwojciec/sitecrawl/slog"
	"github.com/fwojciec/sitecrawl/sqlite"
	"github.com/fwojciec/sitecrawl/trafilatura"
)

// Run executes the crawl command.
func (c *CrawlCmd) Run(deps *Dependencies, m *Main) error {
	cfg := c.config(deps)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", err)
		return err
	}
	logger := deps.Logger.With("domain", cfg.Domain)

	domainURL, err := url.Parse(cfg.Domain)
	if err != nil {
		return err
	}

	jar, err := sitecrawlhttp.NewCookieJar()
	if err != nil {
		return err
	}
	if err := sitecrawlhttp.LoadCookies(cfg.CookiePath(), jar, domainURL); err != nil {
		return err
	}

	transport, err := sitecrawlhttp.NewTransport(
		sitecrawlhttp.WithTimeout(cfg.Timeout),
		sitecrawlhttp.WithUserAgent(cfg.UserAgent),
		sitecrawlhttp.WithMaxBodySize(cfg.MaxBodySize),
		sitecrawlhttp.WithCookieJar(jar),
	)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	defer transport.Close()

	sink, closeSink := c.pageSink(m, logger)
	defer closeSink()

	rules := config.DefaultRules()
	if c.Rules != "" {
		if rules, err = config.LoadRules(c.Rules); err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", err)
			return err
		}
	}
	extractors, err := buildExtractors(rules, c.pageBuilder(cfg.Domain, domainURL), sink, logger)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitecrawl.ErrorMessage(err))
		return err
	}

	scheduler := crawl.NewScheduler(transport,
		crawl.WithRunLimit(cfg.RunLimit),
		crawl.WithRateBudget(crawl.NewRateBudget(cfg.ReqPerInterval, cfg.ReqIntervalGap)),
		crawl.WithQueueStore(deps.State),
		crawl.WithPollTimeout(cfg.PollTimeout),
		crawl.WithLogger(logger),
	)

	crawler := &crawl.Crawler{
		Domain:        cfg.Domain,
		Scheduler:     scheduler,
		Visited:       crawl.NewVisitedSet(sitecrawl.RequestOptions{FollowRedirects: true}),
		Extractors:    extractors,
		State:         deps.State,
		ForgetVisited: cfg.ForgetVisited,
		Logger:        logger,
	}
	if cfg.Sitemap {
		crawler.Sitemaps = scslog.NewLoggingSitemapService(sitecrawlhttp.NewSitemapService(transport.Client()), logger)
	}

	begin := time.Now()
	runErr := crawler.Run(deps.Ctx, cfg.Seeds...)

	if err := sitecrawlhttp.SaveCookies(cfg.CookiePath(), jar, domainURL); err != nil {
		runErr = errors.Join(runErr, err)
	}

	printSummary(deps.Stdout, crawler.Stats(), scheduler, time.Since(begin))
	return runErr
}

// config builds the crawl configuration from flags.
func (c *CrawlCmd) config(deps *Dependencies) *config.Config {
	cfg := config.NewConfig()
	cfg.Domain = deps.Domain
	cfg.Seeds = c.Seed
	cfg.RunLimit = c.RunLimit
	cfg.ReqPerInterval = c.ReqPerInt
	cfg.ReqIntervalGap = c.ReqIntGap
	cfg.PollTimeout = c.PollTimeout
	cfg.Timeout = c.Timeout
	cfg.MaxBodySize = c.MaxBodySize
	cfg.StateDir = deps.StateDir
	cfg.ForgetVisited = c.ForgetVisited
	cfg.Sitemap = c.Sitemap
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	return cfg
}

// pageBuilder extracts the main content of saved pages as Markdown unless
// raw pages were requested.
func (c *CrawlCmd) pageBuilder(domain string, domainURL *url.URL) sitecrawl.PageBuilder {
	if c.Raw {
		return &crawl.PageBuilder{}
	}
	return &crawl.PageBuilder{
		Content: sitecrawl.ContentExtractors{
			trafilatura.NewExtractor(),
			readability.NewExtractor(readability.WithBaseURL(domainURL)),
		},
		Converter: htmltomarkdown.NewConverter(htmltomarkdown.WithDomain(domain)),
	}
}

// pageSink fans saved pages out to every configured destination. Returns a
// nil sink when none is configured.
func (c *CrawlCmd) pageSink(m *Main, logger *slog.Logger) (sitecrawl.PageSink, func()) {
	var sinks crawl.FanoutSink
	var producer *kafka.PageProducer

	if m.PageDB != nil {
		sinks = append(sinks, sqlite.NewPageService(m.PageDB))
	}
	if c.OutDir != "" {
		sinks = append(sinks, fs.NewPageWriter(c.OutDir))
	}
	if c.KafkaBroker != "" {
		producer = kafka.NewPageProducer(c.KafkaBroker, c.KafkaTopic)
		sinks = append(sinks, producer)
	}

	closeFn := func() {
		if producer != nil {
			if err := producer.Close(); err != nil {
				logger.Error("failed to close kafka producer", "err", err)
			}
		}
	}
	if len(sinks) == 0 {
		return nil, closeFn
	}
	return scslog.NewLoggingPageSink(sinks, logger), closeFn
}

// buildExtractors turns rules into link extractors in rule order.
func buildExtractors(rules []config.Rule, pages sitecrawl.PageBuilder, sink sitecrawl.PageSink, logger *slog.Logger) (sitecrawl.Extractors, error) {
	extractors := make(sitecrawl.Extractors, 0, len(rules))
	for _, rule := range rules {
		x, err := goquery.NewRuleExtractor(rule.Name, rule.Match, rule.Allow, rule.Reject)
		if err != nil {
			return nil, err
		}
		x.Selector = rule.Selector
		if rule.Save && sink != nil {
			x.Pages = pages
			x.Sink = sink
		}
		extractors = append(extractors, scslog.NewLoggingExtractor(x, rule.Name, logger))
	}
	return extractors, nil
}

func printSummary(w io.Writer, stats crawl.Stats, scheduler *crawl.Scheduler, elapsed time.Duration) {
	fmt.Fprintf(w, "Fetched %d pages in %s (%d extracted, %d retried, %d rejected, %d discovered)\n",
		stats.Fetched, elapsed.Round(time.Millisecond), stats.Extracted, stats.Retried, stats.Rejected, stats.Discovered)

	if scheduler.Interrupted() {
		pending := scheduler.Pending()
		fmt.Fprintf(w, "Interrupted: %d pending requests saved\n", len(pending))
		for i, req := range pending {
			if i == 5 {
				fmt.Fprintf(w, "  ... and %d more\n", len(pending)-i)
				break
			}
			fmt.Fprintf(w, "  %s\n", crawl.TruncateURL(req.URL, 80))
		}
	}
}
