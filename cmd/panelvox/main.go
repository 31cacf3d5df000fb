// Command panelvox turns extracted comic pages into voice-tagged dialogue
// scripts, keeping character voices consistent across scenes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/panelvox/panelvox/internal/analyzer"
	"github.com/panelvox/panelvox/internal/classify"
	"github.com/panelvox/panelvox/internal/config"
	"github.com/panelvox/panelvox/internal/enhance"
	"github.com/panelvox/panelvox/internal/objectstore"
	"github.com/panelvox/panelvox/internal/observe"
	"github.com/panelvox/panelvox/internal/pagesource"
	"github.com/panelvox/panelvox/internal/pipeline"
	"github.com/panelvox/panelvox/internal/resilience"
	"github.com/panelvox/panelvox/internal/roster"
	"github.com/panelvox/panelvox/internal/script"
	"github.com/panelvox/panelvox/internal/store"
	"github.com/panelvox/panelvox/internal/voice"
	"github.com/panelvox/panelvox/pkg/provider/llm"
	"github.com/panelvox/panelvox/pkg/provider/llm/anyllm"
	oaillm "github.com/panelvox/panelvox/pkg/provider/llm/openai"
	"github.com/panelvox/panelvox/pkg/provider/speech"
	"github.com/panelvox/panelvox/pkg/provider/speech/elevenlabs"
	"github.com/panelvox/panelvox/pkg/provider/vision"
	oaivision "github.com/panelvox/panelvox/pkg/provider/vision/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	stats := flag.Bool("stats", false, "print registry and consistency statistics after processing")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] scene [scene...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	scenes := flag.Args()
	if len(scenes) == 0 && !*stats {
		flag.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "panelvox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "panelvox: %v\n", err)
		}
		return 1
	}

	// ── Logging and metrics ───────────────────────────────────────────────────
	observe.SetupLogging(string(cfg.Log.Level))
	mp, err := observe.InitProvider()
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	slog.Info("panelvox starting",
		"config", *configPath,
		"scenes", len(scenes),
		"log_level", cfg.Log.Level,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Durable stores ────────────────────────────────────────────────────────
	docs, cleanup, err := buildDocStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open durable store", "err", err)
		return 1
	}
	defer cleanup()

	registry := voice.New(map[classify.Category][]string{
		classify.CategoryFemale: cfg.Voices.Female,
		classify.CategoryMale:   cfg.Voices.Male,
	}, voice.WithStore(docs, cfg.Store.RegistryKey))
	if err := registry.Load(ctx); err != nil {
		slog.Error("failed to load voice registry", "err", err)
		return 1
	}

	consistency := roster.New(registry, roster.WithStore(docs, cfg.Store.ConsistencyKey))
	if err := consistency.Load(ctx); err != nil {
		slog.Error("failed to load consistency store", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Pipeline assembly ─────────────────────────────────────────────────────
	printStartupSummary(cfg)

	retry := resilience.RetryConfig{Attempts: cfg.Pipeline.RetryAttempts}

	a := analyzer.New(providers.Vision, analyzer.WithRetry(retry))

	var enhancer *enhance.Enhancer
	if providers.LLM != nil {
		enhancer = enhance.New(providers.LLM)
	}

	var asmOpts []script.Option
	if cfg.Voices.Narrator != "" {
		asmOpts = append(asmOpts, script.WithNarrator(cfg.Voices.Narrator))
	}
	assembler := script.New(consistency, registry, asmOpts...)

	opts := []pipeline.Option{
		pipeline.WithSceneStore(docs, cfg.Store.ScenePrefix),
		pipeline.WithCleanup(cfg.Pipeline.Cleanup),
	}
	if cfg.Pipeline.RenderAudio && providers.Speech != nil {
		opts = append(opts, pipeline.WithRenderer(pipeline.NewRenderer(providers.Speech,
			pipeline.WithSynthesisRetry(retry),
			pipeline.WithParallelism(cfg.Pipeline.Parallelism),
		)))
	}
	if cfg.PublishEnabled() {
		client, err := objectstore.New(cfg.Storage.URL, cfg.Storage.Key)
		if err != nil {
			slog.Error("failed to create object store client", "err", err)
			return 1
		}
		opts = append(opts, pipeline.WithPublisher(pipeline.NewStoragePublisher(client, cfg.Storage.Bucket, nil)))
	}

	source := pagesource.NewDirectory(cfg.Pipeline.PagesDir, nil)
	p := pipeline.New(source, a, consistency, enhancer, assembler, opts...)

	// ── Scene processing ──────────────────────────────────────────────────────
	exitCode := 0
	for _, scene := range scenes {
		if ctx.Err() != nil {
			slog.Warn("interrupted, skipping remaining scenes")
			exitCode = 1
			break
		}
		result, err := p.Run(ctx, scene)
		if err != nil {
			slog.Error("scene failed", "scene", scene, "err", err)
			exitCode = 1
			continue
		}
		fmt.Printf("scene %s: %d/%d pages succeeded (state %s)\n",
			result.SceneID, result.SuccessfulPages, result.TotalPages, result.State)
	}

	if *stats {
		if err := printStats(registry, consistency); err != nil {
			slog.Error("failed to print statistics", "err", err)
			exitCode = 1
		}
	}

	slog.Info("goodbye")
	return exitCode
}

// ── Durable store wiring ────────────────────────────────────────────────────────

// buildDocStore opens the configured store backend. The returned cleanup
// releases backend resources and is safe to call once.
func buildDocStore(ctx context.Context, cfg *config.Config) (store.DocStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return store.NewPostgresStore(pool), pool.Close, nil
	default:
		fs, err := store.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

// ── Provider wiring ─────────────────────────────────────────────────────────────

// Providers bundles the instantiated collaborators for pipeline assembly.
type Providers struct {
	Vision vision.Provider
	LLM    llm.Provider
	Speech speech.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Vision ────────────────────────────────────────────────────────────────

	reg.RegisterVision("openai", func(entry config.ProviderEntry) (vision.Provider, error) {
		var opts []oaivision.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaivision.WithBaseURL(entry.BaseURL))
		}
		return oaivision.New(entry.APIKey, entry.Model, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq share the same pattern:
	// optional APIKey + optional BaseURL through the any-llm backend.
	for _, providerName := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// ── Speech ────────────────────────────────────────────────────────────────

	reg.RegisterSpeech("elevenlabs", func(entry config.ProviderEntry) (speech.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	p, err := reg.CreateVision(cfg.Providers.Vision)
	if err != nil {
		return nil, fmt.Errorf("create vision provider %q: %w", cfg.Providers.Vision.Name, err)
	}
	ps.Vision = p
	slog.Info("provider created", "kind", "vision", "name", cfg.Providers.Vision.Name)

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.Speech.Name; name != "" {
		p, err := reg.CreateSpeech(cfg.Providers.Speech)
		if err != nil {
			return nil, fmt.Errorf("create speech provider %q: %w", name, err)
		}
		ps.Speech = p
		slog.Info("provider created", "kind", "speech", "name", name)
	}

	return ps, nil
}

// ── Statistics ──────────────────────────────────────────────────────────────────

func printStats(registry *voice.Registry, consistency *roster.Store) error {
	out := struct {
		Registry    voice.Stats  `json:"voice_registry"`
		Consistency roster.Stats `json:"consistency_store"`
	}{
		Registry:    registry.Stats(),
		Consistency: consistency.Stats(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// ── Startup summary ─────────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Panelvox — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Vision", cfg.Providers.Vision.Name, cfg.Providers.Vision.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Speech", cfg.Providers.Speech.Name, cfg.Providers.Speech.Model)
	fmt.Printf("║  Female voices   : %-19d ║\n", len(cfg.Voices.Female))
	fmt.Printf("║  Male voices     : %-19d ║\n", len(cfg.Voices.Male))
	if cfg.Voices.Narrator != "" {
		fmt.Printf("║  Narrator        : %-19s ║\n", trimCell(cfg.Voices.Narrator))
	} else {
		fmt.Printf("║  Narrator        : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Store backend   : %-19s ║\n", cfg.Store.Backend)
	if cfg.PublishEnabled() {
		fmt.Printf("║  Publishing      : %-19s ║\n", trimCell(cfg.Storage.Bucket))
	} else {
		fmt.Printf("║  Publishing      : %-19s ║\n", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, trimCell(value))
}

func trimCell(value string) string {
	if len(value) > 19 {
		return value[:16] + "…"
	}
	return value
}

// ── Helpers ─────────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
