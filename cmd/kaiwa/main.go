// Package main is the Kaiwa CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/cli"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/search"
	"github.com/hyperjump/kaiwa/internal/segment"
	"github.com/hyperjump/kaiwa/internal/server"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/updater"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/internal/vectorize"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kaiwa/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default and ./config.yaml exists,
// that file is used instead so "kaiwa server" from the project dir picks up the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "vectorize":
		runVectorize()
	case "segment":
		runSegment()
	case "stats":
		runStats()
	case "status":
		runStatus()
	case "reindex":
		runReindex()
	case "version", "--version", "-v":
		fmt.Printf("kaiwa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()
	components.Updater.Start(ctx)

	srv := server.NewServer(components.deps(), cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	// Pending segment and vector updates are flushed before the store closes.
	components.Updater.Stop()
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kaiwa search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Targets: segments (default), chats, messages.
Modes:   hybrid (default), vector, text (segments only).

Examples:
  kaiwa search rechnung falsch
  kaiwa search --target chats --mode vector "vertrag kündigen"
  kaiwa search --output compact --limit 20 lieferung
  kaiwa search --server "" rechnung                  # direct storage, server not running
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)")
	limit := fs.Int("limit", 0, "number of results (0 = config default)")
	target := fs.String("target", string(models.TargetSegments), "what to search: segments, chats, or messages")
	mode := fs.String("mode", string(models.ModeHybrid), "search mode: hybrid, vector, or text")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}

	req := &models.SearchRequest{
		Query:  queryStr,
		Limit:  *limit,
		Target: models.SearchTarget(*target),
		Mode:   models.SearchMode(*mode),
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// Use the HTTP API when the server is running (avoids Bleve/SQLite lock conflict).
		response = new(models.SearchResponse)
		if err := postJSON(*serverURL+"/api/v1/search", req, http.StatusOK, response); err != nil {
			fail("Search failed: %v", err)
		}
	} else {
		response = searchDirect(*configPath, req)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func searchDirect(configPath string, req *models.SearchRequest) *models.SearchResponse {
	cfg, components := openDirect(configPath)
	defer components.Close()

	if err := req.Validate(cfg.Search.DefaultLimit, cfg.Search.MaxLimit); err != nil {
		fail("Invalid search: %v", err)
	}
	ctx := context.Background()
	start := time.Now()
	resp := &models.SearchResponse{Query: req.Query, Mode: req.Mode, Target: req.Target}
	switch req.Target {
	case models.TargetSegments:
		switch req.Mode {
		case models.ModeVector:
			resp.Segments = components.Search.FindSimilarSegments(ctx, req.Query, req.Limit)
		case models.ModeText:
			resp.Segments = components.Text.SearchSegments(ctx, req.Query, req.Limit)
		default:
			resp.Segments = components.Hybrid.HybridSearchSegments(ctx, req.Query, req.Limit)
		}
		resp.Total = len(resp.Segments)
	case models.TargetChats:
		if req.Mode == models.ModeVector {
			for _, c := range components.Search.FindSimilarChats(ctx, req.Query, req.Limit) {
				resp.Chats = append(resp.Chats, &models.HybridSearchResult{
					Chat: c.Chat, VectorScore: c.SimilarityScore, HybridScore: c.SimilarityScore, MatchType: models.MatchVector,
				})
			}
		} else {
			resp.Chats = components.Hybrid.HybridSearchChats(ctx, req.Query, req.Limit)
		}
		resp.Total = len(resp.Chats)
	case models.TargetMessages:
		resp.Messages = components.Search.FindSimilarMessages(ctx, req.Query, req.Limit)
		resp.Total = len(resp.Messages)
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp
}

func runVectorize() {
	fs := flag.NewFlagSet("vectorize", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	target := fs.String("target", string(models.TargetSegments), "what to vectorize: segments, chats, or messages")
	force := fs.Bool("force", false, "clear and recompute every vector instead of only missing ones")
	_ = fs.Parse(os.Args[2:])

	req := models.VectorizeRequest{Target: models.SearchTarget(*target), Force: *force}
	if *serverURL != "" {
		var out struct {
			Vectorized int `json:"vectorized"`
		}
		if err := postJSON(*serverURL+"/api/v1/vectorize", req, http.StatusOK, &out); err != nil {
			fail("Vectorize failed: %v", err)
		}
		fmt.Printf("Vectorized %d %s\n", out.Vectorized, req.Target)
		return
	}

	_, components := openDirect(*configPath)
	defer components.Close()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	v := components.Vectorizer
	var (
		n   int
		err error
	)
	switch req.Target {
	case models.TargetChats:
		if req.Force {
			n, err = v.ReVectorizeAllChats(ctx)
		} else {
			n, err = v.VectorizeUnprocessedChats(ctx)
		}
	case models.TargetMessages:
		if req.Force {
			n, err = v.ReVectorizeAllMessages(ctx)
		} else {
			n, err = v.VectorizeUnprocessedMessages(ctx)
		}
	case models.TargetSegments:
		if req.Force {
			n, err = v.ReVectorizeAllSegments(ctx)
		} else {
			n, err = v.VectorizeUnprocessedSegments(ctx)
		}
	default:
		fail("Unknown target %q; use segments, chats, or messages", req.Target)
	}
	if err != nil {
		fail("Vectorize stopped after %d %s: %v", n, req.Target, err)
	}
	fmt.Printf("Vectorized %d %s\n", n, req.Target)
}

func runSegment() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: kaiwa segment <daily|thematic> [flags] <chat-id>")
		fmt.Println("  kaiwa segment daily 42                     Rebuild one segment per day")
		fmt.Println("  kaiwa segment thematic --threshold 0.8 42  Cluster messages by topic (not persisted)")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	threshold := fs.Float64("threshold", 0, "thematic similarity threshold (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(searchArgsReorder(os.Args[3:]))

	if fs.NArg() < 1 {
		fail("Usage: kaiwa segment %s [flags] <chat-id>", sub)
	}
	chatID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || chatID <= 0 {
		fail("Invalid chat id: %s", fs.Arg(0))
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	if sub != "daily" && sub != "thematic" {
		fail("Unknown segment subcommand: %s", sub)
	}

	var segs []*models.ChatSegment
	if *serverURL != "" {
		url := fmt.Sprintf("%s/api/v1/chats/%d/segments/%s", *serverURL, chatID, sub)
		want := http.StatusCreated
		if sub == "thematic" {
			want = http.StatusOK
			if *threshold > 0 {
				url += "?threshold=" + strconv.FormatFloat(*threshold, 'f', -1, 64)
			}
		}
		var out struct {
			Segments []*models.ChatSegment `json:"segments"`
		}
		if err := postJSON(url, nil, want, &out); err != nil {
			fail("Segment failed: %v", err)
		}
		segs = out.Segments
	} else {
		cfg, components := openDirect(*configPath)
		defer components.Close()
		ctx := context.Background()
		if sub == "daily" {
			segs, err = components.Segments.CreateDailySegments(ctx, chatID)
		} else {
			if *threshold <= 0 {
				*threshold = cfg.Segmentation.ThematicThreshold
			}
			segs, err = components.Segments.CreateThematicSegments(ctx, chatID, *threshold)
		}
		if err != nil {
			fail("Segment failed: %v", err)
		}
	}
	if err := cli.WriteSegments(os.Stdout, segs, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	stats := &cli.Stats{}
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/stats", stats); err != nil {
			fail("Stats failed: %v", err)
		}
	} else {
		_, components := openDirect(*configPath)
		defer components.Close()
		ctx := context.Background()
		if stats.Vectorization, err = components.Vectorizer.GetVectorizationStats(ctx); err != nil {
			fail("Stats failed: %v", err)
		}
		if stats.Segments, err = components.Vectorizer.GetSegmentVectorizationStats(ctx); err != nil {
			fail("Segment stats failed: %v", err)
		}
	}
	if err := cli.WriteStats(os.Stdout, stats, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Counts         *storage.Counts          `json:"counts,omitempty"`
	NativeSearch   bool                     `json:"native_vector_search"`
	TextSearch     bool                     `json:"text_search"`
	PendingTasks   int                      `json:"pending_tasks"`
	DiskUsage      []storage.ComponentUsage `json:"disk_usage,omitempty"`
	DiskUsageBytes int64                    `json:"disk_usage_bytes"`
	Embedding      *statusEmbeddingResponse `json:"embedding,omitempty"`
	Config         map[string]interface{}   `json:"config,omitempty"`
}

type statusEmbeddingResponse struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fail("Status failed: %v", err)
		}
	} else {
		status = statusDirect(*configPath)
	}

	switch *outputFormat {
	case "json":
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fail("Output failed: %v", err)
		}
	case "text":
		if c := status.Counts; c != nil {
			fmt.Printf("contacts:           %d\n", c.Contacts)
			fmt.Printf("chats:              %d\n", c.Chats)
			fmt.Printf("messages:           %d\n", c.Messages)
			fmt.Printf("segments:           %d\n", c.Segments)
		}
		fmt.Printf("native_search:      %t   # store-side k-NN active\n", status.NativeSearch)
		fmt.Printf("text_search:        %t\n", status.TextSearch)
		fmt.Printf("pending_tasks:      %d   # queued segment/vector updates\n", status.PendingTasks)
		if e := status.Embedding; e != nil {
			fmt.Printf("embedding_model:    %s (%d dims, available=%t)\n", e.Model, e.Dimensions, e.Available)
		}
		for _, u := range status.DiskUsage {
			fmt.Printf("%-19s %d   # %s\n", "disk["+u.Component+"]:", u.Bytes, u.Path)
		}
		fmt.Printf("disk_usage_bytes:   %d   # storage + indices on disk\n", status.DiskUsageBytes)
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, k := range []string{"driver", "vector_index_type", "database_path"} {
				if v, ok := status.Config[k]; ok && v != "" {
					fmt.Printf("%-19s %v\n", k+":", v)
				}
			}
		}
	default:
		fail("Unknown output format %q; use text or json", *outputFormat)
	}
}

func statusDirect(configPath string) statusResponse {
	cfg, components := openDirect(configPath)
	defer components.Close()

	status := statusResponse{
		NativeSearch: components.Search.NativeSearchAvailable(),
		TextSearch:   components.Text != nil,
		Embedding: &statusEmbeddingResponse{
			Model:      components.Provider.ModelName(),
			Dimensions: components.Provider.Dimensions(),
			Available:  components.Provider.Available(),
		},
		Config: map[string]interface{}{
			"driver":            cfg.Storage.Driver,
			"vector_index_type": cfg.Storage.VectorIndexType,
		},
	}
	if counter, ok := components.Store.(storage.Counter); ok {
		counts, err := counter.Counts(context.Background())
		if err != nil {
			fail("Count failed: %v", err)
		}
		status.Counts = &counts
	}
	paths := map[string][]string{"bleve": {cfg.Storage.BleveIndexPath}}
	if cfg.Storage.Driver == config.DriverSQLite {
		status.Config["database_path"] = cfg.Storage.DatabasePath
		paths["database"] = storage.SQLiteFiles(cfg.Storage.DatabasePath)
	}
	if cfg.Embedding.PersistentCachePath != "" {
		paths["embedding_cache"] = []string{cfg.Embedding.PersistentCachePath}
	}
	if usage, total, err := storage.MeasureComponents(paths); err == nil {
		status.DiskUsage = usage
		status.DiskUsageBytes = total
	}
	return status
}

// runReindex rebuilds the segment text index from storage. It opens the Bleve index
// directly, so the server must not be running.
func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, components := openDirect(*configPath)
	defer components.Close()
	n, err := components.Text.Reindex(context.Background())
	if err != nil {
		fail("Reindex failed: %v", err)
	}
	fmt.Printf("Reindexed %d segment(s)\n", n)
}

// openDirect loads config and builds components for one-shot commands. Logs go to stderr.
func openDirect(configPath string) (*config.Config, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	logger, err := utils.NewCommandLogger(cfg.Debug)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fail("Failed to initialize: %v", err)
	}
	return cfg, components
}

func postJSON(url string, body interface{}, wantStatus int, out interface{}) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	resp, err := http.Post(url, "application/json", reader)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, wantStatus, out)
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, http.StatusOK, out)
}

func decodeResponse(resp *http.Response, wantStatus int, out interface{}) error {
	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Store      storage.Store
	Provider   *embedding.Provider
	Index      *keyword.SegmentIndex
	Text       *search.TextSearcher
	Search     *search.Engine
	Hybrid     *search.HybridRanker
	Segments   *segment.Engine
	Vectorizer *vectorize.Coordinator
	Updater    *updater.Updater
	Chats      *chat.Service
}

func (c *Components) deps() server.Deps {
	return server.Deps{
		Store:      c.Store,
		Chats:      c.Chats,
		Segments:   c.Segments,
		Search:     c.Search,
		Hybrid:     c.Hybrid,
		Text:       c.Text,
		Vectorizer: c.Vectorizer,
		Model:      c.Provider,
		Tasks:      c.Updater,
	}
}

// Close releases indexes, the model and the store. The updater must be stopped first.
func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	opts := []storage.Option{storage.WithLogger(logger), storage.WithDimensions(cfg.Embedding.Dimensions)}
	if cfg.Storage.Driver == config.DriverPostgres {
		return storage.NewPostgresStorage(ctx, cfg.Storage.PostgresDSN, opts...)
	}
	indexType, err := vectorIndexType(cfg.Storage.VectorIndexType, logger)
	if err != nil {
		return nil, err
	}
	if indexType != vector.IndexTypeNone {
		opts = append(opts, storage.WithVectorIndex(string(indexType), cfg.Embedding.Dimensions))
	}
	return storage.NewSQLiteStorage(cfg.Storage.DatabasePath, opts...)
}

// vectorIndexType falls back to the memory index when FAISS is configured but not compiled in.
func vectorIndexType(requested string, logger *zap.Logger) (vector.IndexType, error) {
	t, err := vector.ParseIndexType(requested)
	if err != nil {
		return "", err
	}
	resolved, fellBack := t.Resolve()
	if fellBack {
		logger.Warn("failed to create vector index, falling back to memory",
			zap.String("requested_type", requested),
			zap.Bool("faiss_available", vector.IsFAISSAvailable()))
	}
	return resolved, nil
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Store: store}

	c.Provider, err = embedding.NewFromConfig(cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Info("embedding provider initialized",
		zap.String("model", c.Provider.ModelName()),
		zap.Int("dimensions", c.Provider.Dimensions()))

	c.Index, err = keyword.NewSegmentIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize segment index: %w", err)
	}
	c.Text = search.NewTextSearcher(c.Index, store,
		search.WithTextLogger(logger),
		search.WithTitleBoost(cfg.Search.KeywordTitleBoost),
		search.WithSpellCorrection(true))

	c.Search = search.NewEngine(store, c.Provider, search.WithLogger(logger))
	if c.Search.RefreshNativeSearch(ctx) {
		logger.Info("native vector search enabled", zap.String("driver", cfg.Storage.Driver))
	}
	c.Hybrid = search.NewHybridRanker(c.Search, store,
		search.WithWeights(cfg.Search.VectorWeight, cfg.Search.TextWeight),
		search.WithCandidateMultiplier(cfg.Search.CandidateMultiplier),
		search.WithSnippetLength(cfg.Search.SnippetLength),
		search.WithTextSearcher(c.Text))

	c.Segments = segment.NewEngine(store, c.Provider,
		segment.WithLogger(logger),
		segment.WithIndexer(c.Text))
	c.Vectorizer = vectorize.NewCoordinator(store, c.Provider,
		vectorize.WithLogger(logger),
		vectorize.WithWorkers(cfg.Vectorization.Workers),
		vectorize.WithLogIntervals(cfg.Vectorization.ChatLogInterval, cfg.Vectorization.MessageLogInterval, cfg.Vectorization.SegmentLogInterval))

	c.Updater = updater.New(updater.NewPipeline(c.Segments, c.Vectorizer, logger),
		updater.WithLogger(logger),
		updater.WithDebounce(cfg.Vectorization.UpdateDebounce),
		updater.WithQueueSize(cfg.Vectorization.QueueSize))
	c.Chats = chat.NewService(store, c.Updater, chat.WithLogger(logger))
	return c, nil
}

func printUsage() {
	fmt.Println(`kaiwa - Chat segmentation and semantic search

Usage:
  kaiwa server [flags]                        Start the HTTP server
  kaiwa search [flags] <query>                Search segments, chats or messages
  kaiwa vectorize [flags]                     Embed entities that have no vector yet
  kaiwa segment <daily|thematic> [flags] <id> Build segments for one chat
  kaiwa stats [flags]                         Show vectorization coverage
  kaiwa status [flags]                        Show storage, index and model status
  kaiwa reindex [flags]                       Rebuild the segment text index (server stopped)
  kaiwa version                               Show version
  kaiwa help                                  Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kaiwa/config.yaml, or ./config.yaml if present)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --output string    Output format: text, compact or json (status: text or json)

Server Flags:
  --debug            Enable debug logging

Search Flags:
  --target string    segments (default), chats, or messages
  --mode string      hybrid (default), vector, or text
  --limit int        Number of results (default from config)

Vectorize Flags:
  --target string    segments (default), chats, or messages
  --force            Clear and recompute all vectors

Segment Flags:
  --threshold float  Thematic similarity threshold (default from config, 0.7)

Examples:
  kaiwa server
  kaiwa search "rechnung falsch"
  kaiwa search --target chats --output json kündigung
  kaiwa vectorize --target messages
  kaiwa vectorize --target chats --force
  kaiwa segment daily 42
  kaiwa stats --output compact
  kaiwa status --output json`)
}
