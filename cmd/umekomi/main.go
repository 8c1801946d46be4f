// Package main is the umekomi CLI entry point.
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
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/umekomi/internal/cli"
	"github.com/hyperjump/umekomi/internal/config"
	"github.com/hyperjump/umekomi/internal/docs"
	"github.com/hyperjump/umekomi/internal/encoder"
	"github.com/hyperjump/umekomi/internal/executor"
	"github.com/hyperjump/umekomi/internal/metrics"
	"github.com/hyperjump/umekomi/internal/pipeline"
	"github.com/hyperjump/umekomi/internal/rank"
	"github.com/hyperjump/umekomi/internal/server"
	"github.com/hyperjump/umekomi/internal/tuner"
	"github.com/hyperjump/umekomi/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/umekomi/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "umekomi server" from the project dir uses the
// project's config (including debug).
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
	case "encode":
		runEncode()
	case "rank":
		runRank()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("umekomi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (bucket splits, minibatch sizes, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	metrics.Register()

	srv := server.NewServer(components.Executor, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front of the slice so that flag.Parse() sees
// them. Go's flag package stops at the first non-flag argument, so
// "umekomi encode \"some text\" -output json" would otherwise leave -output
// unparsed.
func argsReorder(args []string) []string {
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

// buildDocuments turns positional CLI arguments into documents. With asImage
// set, each argument becomes an image URI; otherwise each is a text document.
func buildDocuments(args []string, asImage bool) []*docs.Document {
	out := make([]*docs.Document, 0, len(args))
	for _, a := range args {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		d := &docs.Document{}
		if asImage {
			d.URI = a
		} else {
			d.Text = a
		}
		out = append(out, d)
	}
	return out
}

func runEncode() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for in-process mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run the model in-process)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	asImage := fs.Bool("image", false, "treat arguments as image paths or URLs instead of text")
	overwrite := fs.Bool("overwrite", false, "re-encode documents that already carry an embedding")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: umekomi encode [flags] <text-or-path>...")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	collection := buildDocuments(fs.Args(), *asImage)
	if len(collection) == 0 {
		fmt.Println("Usage: umekomi encode [flags] <text-or-path>...")
		os.Exit(1)
	}

	params := executor.Params{OverwriteEmbeddings: *overwrite}
	result, err := runOperation(*serverURL, *configPath, executor.OpEncode, collection, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteEncodeResults(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRank() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("rank", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for in-process mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run the model in-process)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	anchorText := fs.String("anchor", "", "anchor text the candidates are ranked against")
	anchorImage := fs.String("anchor-image", "", "anchor image path or URL (alternative to -anchor)")
	asImage := fs.Bool("image", false, "treat candidates as image paths or URLs instead of text")
	_ = fs.Parse(args)

	if (*anchorText == "") == (*anchorImage == "") {
		fmt.Println("Usage: umekomi rank (-anchor <text> | -anchor-image <path>) [flags] <candidate>...")
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Println("Usage: umekomi rank (-anchor <text> | -anchor-image <path>) [flags] <candidate>...")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	anchor := &docs.Document{Text: *anchorText, URI: *anchorImage}
	anchor.Matches = buildDocuments(fs.Args(), *asImage)

	result, err := runOperation(*serverURL, *configPath, executor.OpRank, []*docs.Document{anchor}, executor.Params{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rank failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRankResults(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// runOperation dispatches encode/rank to the running server over HTTP, or
// builds the components in-process when serverURL is empty.
func runOperation(serverURL, configPath, op string, collection []*docs.Document, params executor.Params) ([]*docs.Document, error) {
	if serverURL != "" {
		return operationViaHTTP(serverURL, op, collection, params)
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	defer components.Close()

	if err := components.Executor.Execute(context.Background(), op, collection, params); err != nil {
		return nil, err
	}
	return collection, nil
}

// wireParams mirrors the server's request parameter shape.
type wireParams struct {
	TraversalScope      string `json:"traversal_scope,omitempty"`
	BatchSize           int    `json:"batch_size,omitempty"`
	OverwriteEmbeddings bool   `json:"overwrite_embeddings,omitempty"`
}

func operationViaHTTP(serverURL, op string, collection []*docs.Document, params executor.Params) ([]*docs.Document, error) {
	body, err := json.Marshal(map[string]interface{}{
		"data": collection,
		"parameters": wireParams{
			TraversalScope:      params.TraversalScope.String(),
			BatchSize:           params.BatchSize,
			OverwriteEmbeddings: params.OverwriteEmbeddings,
		},
	})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/"+op, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Data []*docs.Document `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Data, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status struct {
		Status string `json:"status"`
		Config struct {
			Dimensions    int     `json:"dimensions"`
			LogitScale    float64 `json:"logit_scale"`
			MinibatchSize int     `json:"minibatch_size"`
			MaxTokens     int     `json:"max_tokens"`
			ImageSize     int     `json:"image_size"`
			NumWorkers    int     `json:"num_workers"`
			Device        string  `json:"device"`
			Replicas      int     `json:"replicas"`
		} `json:"config"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("status:          %s\n", status.Status)
		fmt.Printf("dimensions:      %d   # embedding dimension\n", status.Config.Dimensions)
		fmt.Printf("logit_scale:     %g   # softmax temperature for clip_score\n", status.Config.LogitScale)
		fmt.Printf("minibatch_size:  %d\n", status.Config.MinibatchSize)
		fmt.Printf("max_tokens:      %d\n", status.Config.MaxTokens)
		fmt.Printf("image_size:      %d\n", status.Config.ImageSize)
		fmt.Printf("num_workers:     %d   # preprocessing pool size\n", status.Config.NumWorkers)
		if status.Config.Device != "" {
			fmt.Printf("device:          %s\n", status.Config.Device)
		}
		if status.Config.Replicas > 0 {
			fmt.Printf("replicas:        %d\n", status.Config.Replicas)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Model    encoder.Model
	Executor *executor.Executor
}

func (c *Components) Close() {
	if c.Model != nil {
		_ = c.Model.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	settings := tuner.Tune(cfg.Runtime.Device, cfg.Runtime.Replicas, encoder.CUDAAvailable, logger)
	logger.Info("runtime tuned",
		zap.String("device", settings.Device),
		zap.Int("intra_op_threads", settings.IntraOpThreads),
		zap.Int("inter_op_threads", settings.InterOpThreads),
	)

	var model encoder.Model
	onnxModel, err := encoder.NewONNXModel(
		cfg.Model.TextModelPath,
		cfg.Model.ImageModelPath,
		cfg.Model.Dimensions,
		cfg.Model.LogitScale,
		settings,
	)
	if err != nil {
		logger.Warn("ONNX model unavailable, falling back to mock encoder", zap.Error(err))
		model = encoder.NewMockModel(cfg.Model.Dimensions).WithLogitScale(cfg.Model.LogitScale)
	} else {
		model = onnxModel
	}

	schedOpts := []pipeline.SchedulerOption{}
	if cfg.Model.CacheSize > 0 {
		schedOpts = append(schedOpts, pipeline.WithTextCache(encoder.NewTextCache(cfg.Model.CacheSize)))
	}
	if debug {
		schedOpts = append(schedOpts, pipeline.WithLogger(logger))
	}
	sched := pipeline.NewScheduler(model, &cfg.Encode, schedOpts...)

	scorer := rank.NewScorer(sched, model.LogitScale(), rank.WithLogger(logger))
	exec := executor.New(sched, scorer, logger)

	return &Components{
		Model:    model,
		Executor: exec,
	}, nil
}

func printUsage() {
	fmt.Println(`umekomi - dual-encoder embedding and ranking service

Usage:
  umekomi server [flags]                 Start the HTTP server
  umekomi encode [flags] <text|path>...  Embed texts or images
  umekomi rank [flags] <candidate>...    Rank candidates against an anchor
  umekomi status [flags]                 Show server status
  umekomi version                        Show version
  umekomi help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/umekomi/config.yaml)
  --debug            Enable debug logging (bucket splits, minibatch sizes, etc.)

Encode Flags:
  --config string    Config file path (for in-process mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to run in-process.
  --output string    Output format: text, compact, or json (default: text)
  --image            Treat arguments as image paths or URLs instead of text
  --overwrite        Re-encode documents that already carry an embedding

Rank Flags:
  --anchor string        Anchor text the candidates are ranked against
  --anchor-image string  Anchor image path or URL (alternative to --anchor)
  --config string        Config file path (for in-process mode)
  --server string        Server URL (default: http://localhost:8080). Use empty (--server "") to run in-process.
  --output string        Output format: text, compact, or json (default: text)
  --image                Treat candidates as image paths or URLs instead of text

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  umekomi server
  umekomi encode "first sentence" "second sentence"
  umekomi encode --image photo.png
  umekomi encode --server "" --output json "offline encode"
  umekomi rank --anchor "a photo of a dog" "a dog" "a cat" "a car"
  umekomi rank --anchor-image dog.png --image a.png b.png
  umekomi status --output json`)
}
