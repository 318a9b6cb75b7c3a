package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/v0xg/replaybot/internal/browser"
	"github.com/v0xg/replaybot/internal/classifier"
	"github.com/v0xg/replaybot/internal/config"
	"github.com/v0xg/replaybot/internal/engine"
	"github.com/v0xg/replaybot/internal/logging"
	"github.com/v0xg/replaybot/internal/mail"
	"github.com/v0xg/replaybot/internal/storage"
	"github.com/v0xg/replaybot/internal/trace"
	"github.com/v0xg/replaybot/internal/tracker"
)

var (
	prompt     string
	promptFile string
	template   bool
	debug      bool
	verbose    bool
	headful    bool
	provider   string
	model      string
	configPath string
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "replaybot [prompt]",
		Short: "Replay ticket test documents in a real browser",
		Long: `replaybot reads the test document stored on a tracker ticket, replays it
in a real browser session and archives a full trace of the run.

Prompts are plain language:
  replaybot "run QA-42 on staging"
  replaybot "update QA-42 from records/login_test.json"
  replaybot "set tracker_url https://tracker.example.com"`,
		Args: cobra.ArbitraryArgs,
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt text")
	rootCmd.Flags().StringVarP(&promptFile, "file", "f", "", "Read the prompt from a file")
	rootCmd.Flags().BoolVarP(&template, "template", "t", false, "Print a starter test record and exit")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Debug mode: headful browser and debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")
	rootCmd.PersistentFlags().BoolVar(&headful, "headful", false, "Run the browser with a visible window")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "AI provider: claude, openai (default: from config)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Specific model override")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./replaybot.json)")

	rootCmd.AddCommand(scrapeCmd(), showCmd(), inboxCmd(), profilesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if template {
		fmt.Println(classifier.Template())
		return nil
	}

	text, err := resolvePrompt(args)
	if err != nil {
		return err
	}

	log := logging.New(verbose || debug)
	cfg, err := openConfig(log)
	if err != nil {
		return err
	}

	// Settings bypass classification entirely
	if key, value, ok := config.ParseSetCommand(text); ok {
		if err := cfg.Set(key, value); err != nil {
			return err
		}
		fmt.Printf("✓ %s updated\n", key)
		return nil
	}

	selectedProvider := provider
	if selectedProvider == "" {
		if selectedProvider, err = cfg.Get("provider"); err != nil {
			return err
		}
	}
	selectedModel := model
	if selectedModel == "" {
		if selectedModel, err = cfg.Get("model"); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("→ Classifying request via %s... ", selectedProvider)
	aiProvider, err := classifier.NewProvider(selectedProvider, selectedModel)
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("AI provider init failed: %w", err)
	}
	req, err := classifier.ClassifyWithRetry(ctx, aiProvider, text, log)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Printf("done (%s)\n", req.Action)

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	return eng.Handle(ctx, req)
}

// resolvePrompt picks the prompt from -p, -f or the positional args
func resolvePrompt(args []string) (string, error) {
	if prompt != "" {
		return prompt, nil
	}
	if promptFile != "" {
		data, err := os.ReadFile(promptFile)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	return "", fmt.Errorf("no prompt given (use -p, -f or positional arguments)")
}

func openConfig(log *slog.Logger) (*config.Store, error) {
	cfg, err := config.Open(config.Options{
		Path:       configPath,
		Passphrase: os.Getenv("REPLAYBOT_PASSPHRASE"),
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	if headful || debug {
		cfg.Override("headful", true)
	}
	return cfg, nil
}

// buildEngine assembles the engine from the configured tracker and
// storage backend. Missing tracker settings leave the engine degraded
// rather than failing upfront; only actions that need it will error.
func buildEngine(ctx context.Context, cfg *config.Store, log *slog.Logger) (*engine.Engine, error) {
	opts := engine.Options{Config: cfg, Logger: log, Out: os.Stdout}

	trackerURL, err := cfg.Get("tracker_url")
	if err != nil {
		return nil, err
	}
	if trackerURL != "" {
		user, err := cfg.Get("tracker_user")
		if err != nil {
			return nil, err
		}
		token, err := cfg.Get("tracker_token")
		if err != nil {
			return nil, err
		}
		tc, err := tracker.New(tracker.Options{BaseURL: trackerURL, User: user, Token: token, Logger: log})
		if err != nil {
			return nil, err
		}
		opts.Tracker = tc
	}

	backend, err := cfg.Get("storage")
	if err != nil {
		return nil, err
	}
	switch backend {
	case "", "local":
		root, err := cfg.Get("local_store_root")
		if err != nil {
			return nil, err
		}
		opts.Store = storage.NewLocalStore(root, log)
	case "s3":
		bucket, err := cfg.Get("s3_bucket")
		if err != nil {
			return nil, err
		}
		st, err := storage.NewS3Store(ctx, bucket, log)
		if err != nil {
			return nil, err
		}
		opts.Store = st
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: local, s3)", backend)
	}

	return engine.New(opts), nil
}

func scrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape <url>",
		Short: "Map a page's interactive elements and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(verbose || debug)
			cfg, err := openConfig(log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(ctx, cfg, log)
			if err != nil {
				return err
			}
			return eng.Handle(ctx, &classifier.Request{Action: classifier.ActionScrape, URL: args[0]})
		},
	}
}

func showCmd() *cobra.Command {
	var renderGif bool
	var gifOut string
	var gifWidth uint

	cmd := &cobra.Command{
		Use:   "show <trace.zip>",
		Short: "Print the digest of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := trace.ReadSummary(args[0])
			if err != nil {
				return err
			}
			fmt.Print(sum.String())

			if !renderGif {
				return nil
			}
			fmt.Printf("→ Rendering %s... ", gifOut)
			size, err := trace.RenderGIF(args[0], gifOut, gifWidth)
			if err != nil {
				fmt.Println("failed")
				return err
			}
			fmt.Println("done")
			fmt.Printf("✓ Saved to %s (%.1f MB)\n", gifOut, float64(size)/(1024*1024))
			return nil
		},
	}

	cmd.Flags().BoolVar(&renderGif, "gif", false, "Also render the run's screenshots as an animated GIF")
	cmd.Flags().StringVarP(&gifOut, "output", "o", "replay.gif", "GIF output filename")
	cmd.Flags().UintVar(&gifWidth, "width", 800, "GIF width in pixels")
	return cmd
}

func inboxCmd() *cobra.Command {
	var count int
	var fromDomain string

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Print recent verification mails with their links and codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(verbose || debug)
			cfg, err := openConfig(log)
			if err != nil {
				return err
			}
			server, err := cfg.Get("mail_server")
			if err != nil {
				return err
			}
			user, err := cfg.Get("mail_user")
			if err != nil {
				return err
			}
			password, err := cfg.Get("mail_password")
			if err != nil {
				return err
			}

			inbox, err := mail.Dial(mail.Options{Server: server, User: user, Password: password, Logger: log})
			if err != nil {
				return err
			}
			defer inbox.Close()

			messages, err := inbox.Recent(count, fromDomain)
			if err != nil {
				return err
			}
			if len(messages) == 0 {
				fmt.Println("inbox is empty")
				return nil
			}
			for _, m := range messages {
				fmt.Printf("%s  %s\n  %s\n", m.Date.Format("2006-01-02 15:04"), m.From, m.Subject)
				if code, ok := mail.ExtractCode(m.Text + " " + m.HTML); ok {
					fmt.Printf("  code: %s\n", code)
				}
				links, err := mail.ExtractLinks(m.HTML)
				if err != nil {
					log.Debug("message html not parseable", "error", err)
				}
				for _, link := range links {
					fmt.Printf("  link: %s\n", link)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "Number of messages to fetch")
	cmd.Flags().StringVar(&fromDomain, "from", "", "Only messages from this sender domain")
	return cmd
}

func profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the available viewport profiles",
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range browser.Profiles() {
				marker := " "
				if p.Name == browser.DefaultProfile.Name {
					marker = "*"
				}
				fmt.Printf("%s %-8s %4dx%d\n", marker, p.Name, p.Width, p.Height)
			}
		},
	}
}
