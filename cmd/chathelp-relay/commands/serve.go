package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/chathelp/relay/cmd/chathelp-relay/internal/build"
	"github.com/chathelp/relay/internal/config"
	"github.com/chathelp/relay/internal/server"
	"github.com/chathelp/relay/pkg/cache"
	"github.com/chathelp/relay/pkg/chat"
	"github.com/chathelp/relay/pkg/intent"
	"github.com/chathelp/relay/pkg/kv"
	"github.com/chathelp/relay/pkg/search"
	"github.com/chathelp/relay/pkg/session"
	"github.com/chathelp/relay/pkg/storage"
	"github.com/chathelp/relay/pkg/transcribe"
	"github.com/chathelp/relay/pkg/tts"
)

const cacheJanitorInterval = 5 * time.Minute

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newKVStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	textCache := cache.New(store, kv.Key{"cache", "text"}, cfg.Cache.MaxEntries)
	audioCache := cache.New(store, kv.Key{"cache", "audio"}, cfg.Cache.MaxEntries)
	go textCache.Janitor(ctx, cacheJanitorInterval)
	go audioCache.Janitor(ctx, cacheJanitorInterval)

	generator, err := newGenerator(ctx, cfg)
	if err != nil {
		return err
	}

	searcher, err := search.NewClient(cfg.Search.APIKey, search.WithLocale(cfg.Search.Language, cfg.Search.Country))
	if err != nil {
		return err
	}

	synth, err := newSynthesizer(cfg, audioCache)
	if err != nil {
		return err
	}

	files, err := newFileStore(cfg)
	if err != nil {
		return err
	}

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	manager := session.NewManager()
	dispatcher := session.NewDispatcher(session.DispatcherConfig{
		Resolver: &session.Resolver{
			Cache:         textCache,
			Classifier:    intent.New(),
			Generator:     generator,
			Searcher:      searcher,
			Location:      loc,
			ConfirmSearch: cfg.Search.ConfirmDerived,
		},
		Synthesizer:    synth,
		Files:          files,
		AudioURLPrefix: "/audio/",
		GateTimeout:    cfg.GateTimeout(),
		BaseContext:    ctx,
	})

	uploadDir := cfg.UploadDir
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}

	srv := server.New(server.Config{
		Addr:      cfg.Listen,
		PublicDir: cfg.PublicDir,
		UploadDir: uploadDir,
	}, manager, dispatcher, files, transcriber)

	printBanner(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printBanner(cfg *config.Config) {
	fmt.Println(bannerStyle.Render("chathelp-relay") + " " + dimStyle.Render(build.Version))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  listen:    %s", cfg.Listen)))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  generator: %s", cfg.Generator.Provider)))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  tts:       %s", orNone(cfg.TTS.Provider))))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  search:    %s", enabled(cfg.Search.APIKey != ""))))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  storage:   %s", cfg.Storage.Backend)))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func newKVStore(cfg *config.Config) (kv.Store, error) {
	if cfg.Cache.Dir == "" {
		return kv.NewMemory(nil), nil
	}
	return kv.NewBadger(kv.BadgerOptions{Dir: cfg.Cache.Dir})
}

func newGenerator(ctx context.Context, cfg *config.Config) (chat.Generator, error) {
	g := cfg.Generator
	switch g.Provider {
	case "openai":
		return chat.NewOpenAIGenerator(g.APIKey, g.BaseURL, g.Model, g.Temperature, g.MaxTokens)
	case "gemini":
		return chat.NewGeminiGenerator(ctx, g.APIKey, g.Model)
	default:
		return nil, fmt.Errorf("serve: unknown generator provider %q", g.Provider)
	}
}

func newSynthesizer(cfg *config.Config, audioCache *cache.Cache) (*tts.Synthesizer, error) {
	var provider tts.Provider
	switch cfg.TTS.Provider {
	case "":
		return nil, nil
	case "google":
		provider = tts.NewGoogleTranslate(cfg.TTS.Language)
	case "openai":
		p, err := tts.NewOpenAI(cfg.TTS.APIKey, "", cfg.TTS.Model, cfg.TTS.Voice)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("serve: unknown tts provider %q", cfg.TTS.Provider)
	}

	opts := []tts.Option{tts.WithCache(audioCache)}
	if cfg.TTS.MaxPartRunes > 0 {
		opts = append(opts, tts.WithMaxPartRunes(cfg.TTS.MaxPartRunes))
	}
	if cfg.TTS.MaxAttempts > 0 {
		policy := tts.DefaultRetryPolicy()
		policy.MaxAttempts = cfg.TTS.MaxAttempts
		opts = append(opts, tts.WithRetryPolicy(policy))
	}
	return tts.New(provider, opts...), nil
}

func newFileStore(cfg *config.Config) (storage.FileStore, error) {
	switch cfg.Storage.Backend {
	case "local":
		return storage.NewLocal(cfg.Storage.Dir)
	case "s3":
		client := s3.New(s3.Options{
			Region:      cfg.Storage.S3.Region,
			Credentials: aws.CredentialsProviderFunc(envCredentials),
		})
		return storage.NewS3(client, cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("serve: unknown storage backend %q", cfg.Storage.Backend)
	}
}

func envCredentials(ctx context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, fmt.Errorf("serve: AWS credentials not set")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}

func newTranscriber(cfg *config.Config) (transcribe.Transcriber, error) {
	t := cfg.Transcribe
	switch t.Mode {
	case "":
		return nil, nil
	case "exec":
		return &transcribe.Exec{
			Command: t.Command,
			Script:  t.Script,
			Timeout: cfg.TranscribeTimeout(),
		}, nil
	case "whisper":
		return transcribe.NewWhisper(t.APIKey, "", t.Model)
	default:
		return nil, fmt.Errorf("serve: unknown transcribe mode %q", t.Mode)
	}
}
