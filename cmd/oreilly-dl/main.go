// Command oreilly-dl is the external driver spec.md §6 describes: a
// two-subcommand CLI wrapping the Discovery Controller and the Download
// Controller around one authenticated HTTP session. Grounded on the
// teacher's cmd/server/main.go for configuration wiring and on
// drallgood-audiobookshelf-hardcover-sync's cmd/edition/main.go for the
// urfave/cli/v2 App/Command/Flag shape; the terminal progress bar
// follows vjache-cie's cmd/cie/index.go SetProgressCallback pattern,
// fed here by the Event Sink stream instead of a pipeline callback.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"oreilly-library/internal/auth"
	"oreilly-library/internal/cache"
	"oreilly-library/internal/config"
	"oreilly-library/internal/discovery"
	"oreilly-library/internal/download"
	"oreilly-library/internal/epub"
	"oreilly-library/internal/events"
	"oreilly-library/internal/httpclient"
	"oreilly-library/internal/models"
	"oreilly-library/internal/progress"
	"oreilly-library/internal/search"
	"oreilly-library/internal/storage"
)

func main() {
	app := &cli.App{
		Name:  "oreilly-dl",
		Usage: "Build a personal EPUB library by topic from a subscription e-book platform",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "catalog", Aliases: []string{"c"}, Value: "catalog.yaml", Usage: "Path to the skills catalog YAML"},
			&cli.StringFlag{Name: "cookies", Value: "cookies.json", Usage: "Path to the credential bundle"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "library", Usage: "Library output root"},
			&cli.StringFlag{Name: "discovery-dir", Value: "discovery_results", Usage: "Directory for per-skill discovery result files"},
		},
		Commands: []*cli.Command{
			discoverCommand(),
			downloadCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "oreilly-dl: %v\n", err)
		if isInterrupted(err) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func isInterrupted(err error) bool {
	return strings.Contains(err.Error(), "interrupted")
}

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Run Phase A: search every catalog skill and write filtered per-skill result files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "skills", Usage: "Comma-separated subset of skills to discover (default: all)"},
			&cli.IntFlag{Name: "workers", Usage: "Override the catalog's discovery worker count (0 = use catalog default)"},
			&cli.IntFlag{Name: "max-pages", Usage: "Override the catalog's absolute page cap per skill (0 = use catalog default)"},
			&cli.BoolFlag{Name: "update", Usage: "Re-discover skills that already have a result file"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Print what would be discovered without writing result files"},
		},
		Action: runDiscover,
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Run Phase B: build EPUBs for every surviving book in the discovery results",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "skills", Usage: "Comma-separated subset of skills to download (default: all)"},
			&cli.IntFlag{Name: "max-books", Usage: "Stop after this many books total (0 = unlimited)"},
			&cli.StringFlag{Name: "format", Value: "enhanced", Usage: "Variant set to build: legacy, enhanced, kindle, or dual"},
			&cli.BoolFlag{Name: "force", Usage: "Rebuild books already present on disk"},
			&cli.IntFlag{Name: "token-save-interval", Usage: "Override the catalog's token-save cadence in books (0 = use catalog default)"},
		},
		Action: runDownload,
	}
}

// buildSink builds the Event Sink used by both subcommands: always a
// rotating JSON log plus a colorized console line, with Prometheus
// counters added only when METRICS_ADDR is set.
func buildSink(cfg *config.Config) (events.MultiSink, func(), error) {
	logSink, err := events.NewLogSink(cfg.EventLogPath)
	if err != nil {
		return nil, nil, err
	}

	multi := events.MultiSink{logSink}
	var metrics *events.MetricsSink
	if cfg.MetricsAddr != "" {
		metrics = events.NewMetricsSink()
		multi = append(multi, metrics)
		go serveMetrics(cfg.MetricsAddr, metrics)
	}

	return multi, func() { logSink.Close() }, nil
}

func skillAllowList(flagValue string) map[string]bool {
	if flagValue == "" {
		return nil
	}
	allow := make(map[string]bool)
	for _, s := range strings.Split(flagValue, ",") {
		if s = strings.TrimSpace(s); s != "" {
			allow[s] = true
		}
	}
	return allow
}

func runDiscover(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	catalog, err := config.LoadCatalog(c.String("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if w := c.Int("workers"); w > 0 {
		catalog.Discovery.Workers = w
	}
	if m := c.Int("max-pages"); m > 0 {
		catalog.Discovery.MaxPagesAbsolute = m
	}

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	cookieStore, err := auth.Load(c.String("cookies"))
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	client, err := httpclient.New(httpclient.Options{
		BaseURL:         cfg.RemoteBaseURL,
		InitialCookies:  cookieStore.Bundle().Snapshot(),
		OnCookieUpdate:  cookieStore.Bundle().ApplyCookieUpdate,
		FollowRedirects: true,
	})
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}

	version := search.V2
	if cfg.SearchAPIVersion == "v1" {
		version = search.V1
	}
	searcher := search.New(client, cfg.RemoteBaseURL, version)

	outputDir := c.String("discovery-dir")
	skills := catalog.OrderedSkills()
	allow := skillAllowList(c.String("skills"))
	if allow != nil {
		filtered := skills[:0]
		for _, s := range skills {
			if allow[s.Name] {
				filtered = append(filtered, s)
			}
		}
		skills = filtered
	}
	if !c.Bool("update") {
		skills = skipAlreadyDiscovered(skills, outputDir)
	}

	if c.Bool("dry-run") {
		for _, s := range skills {
			fmt.Printf("would discover: %s\n", s.Name)
		}
		return nil
	}

	bar := progressbar.Default(int64(len(skills)), "discovering skills")
	onEvent := events.DiscoveryEventFunc(sink)
	wrapped := func(skill, stage, detail string) {
		onEvent(skill, stage, detail)
		if stage == "skill_done" || stage == "skill_error" {
			bar.Add(1)
		}
	}

	controller := discovery.New(searcher, catalog.FilterThresholds, catalog.Discovery, outputDir, wrapped)
	_, errs := controller.RunAll(skills, catalog.Aliases)
	bar.Finish()

	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return fmt.Errorf("%d skill(s) failed to discover", len(errs))
	}
	return nil
}

func skipAlreadyDiscovered(skills []models.Skill, outputDir string) []models.Skill {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return skills
	}
	done := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			done[strings.TrimSuffix(e.Name(), ".json")] = true
		}
	}

	var out []models.Skill
	for _, s := range skills {
		if !done[sanitizeForLookup(s.Name)] {
			out = append(out, s)
		}
	}
	return out
}

func sanitizeForLookup(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

func runDownload(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	catalog, err := config.LoadCatalog(c.String("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if n := c.Int("token-save-interval"); n > 0 {
		catalog.Download.TokenSaveInterval = n
	}

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	cookieStore, err := auth.Load(c.String("cookies"))
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	client, err := httpclient.New(httpclient.Options{
		BaseURL:         cfg.RemoteBaseURL,
		InitialCookies:  cookieStore.Bundle().Snapshot(),
		OnCookieUpdate:  cookieStore.Bundle().ApplyCookieUpdate,
		FollowRedirects: true,
	})
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}

	tracker, err := progress.Load(cfg.ProgressPath, "download")
	if err != nil {
		return fmt.Errorf("load progress tracker: %w", err)
	}
	stats, err := progress.NewLiveStats("live_stats.txt")
	if err != nil {
		return fmt.Errorf("open live stats file: %w", err)
	}

	allow := skillAllowList(c.String("skills"))
	results, err := download.LoadSkillResults(c.String("discovery-dir"), allow)
	if err != nil {
		return fmt.Errorf("load discovery results: %w", err)
	}
	results = download.OrderPriorityFirst(results, priorityNames(catalog.PrioritySkills()))
	if n := c.Int("max-books"); n > 0 {
		results = capTotalBooks(results, n)
	}

	builder := &epub.Builder{
		Fetcher: &epub.RemoteFetcher{Client: client, BaseURL: cfg.RemoteBaseURL},
		WorkDir: os.TempDir(),
	}

	variants := models.VariantSet(c.String("format"))

	bar := progressbar.Default(int64(countBooks(results)), "building library")
	onEvent := events.DownloadEventFunc(sink)
	wrapped := func(skill, bookID, stage, detail string) {
		onEvent(skill, bookID, stage, detail)
		switch stage {
		case "book_done", "book_failed", "book_skip_disk", "book_skip_cache":
			bar.Add(1)
		}
	}

	controller := download.New(builder, tracker, stats, cookieStore, catalog.Download,
		c.String("output"), variants, wrapped)
	controller.Force = c.Bool("force")
	controller.PresignExpiry = cfg.PresignedURLExpiry

	if os.Getenv("REDIS_HOST") != "" {
		bookCache, err := cache.NewBookCache(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("connect to completion cache: %w", err)
		}
		defer bookCache.Close()
		controller.Cache = bookCache
	}
	if cfg.MinIOEndpoint != "" {
		objectSink, err := storage.NewObjectSink(storage.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
		if err != nil {
			return fmt.Errorf("connect to object storage: %w", err)
		}
		controller.Sink = objectSink
	}

	cancel := make(chan struct{})
	controller.Cancel = cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(cancel)
	}()
	defer signal.Stop(sigCh)

	if err := controller.Run(results); err != nil {
		bar.Finish()
		return fmt.Errorf("download run: %w", err)
	}
	bar.Finish()

	select {
	case <-cancel:
		return fmt.Errorf("interrupted: paused after the in-flight book")
	default:
	}
	return nil
}

func priorityNames(skills []models.Skill) []string {
	names := make([]string, len(skills))
	for i, s := range skills {
		names[i] = s.Name
	}
	return names
}

func countBooks(results []models.SkillResult) int {
	total := 0
	for _, r := range results {
		total += len(r.Books)
	}
	return total
}

func capTotalBooks(results []models.SkillResult, max int) []models.SkillResult {
	var out []models.SkillResult
	remaining := max
	for _, r := range results {
		if remaining <= 0 {
			break
		}
		if len(r.Books) > remaining {
			r.Books = r.Books[:remaining]
		}
		remaining -= len(r.Books)
		out = append(out, r)
	}
	return out
}

// serveMetrics exposes the run's Prometheus registry until the process
// exits; a failure here is logged, not fatal, since metrics are always
// optional.
func serveMetrics(addr string, metrics *events.MetricsSink) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
	}
}
