package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"siterag/internal/config"
	"siterag/internal/domain"
	"siterag/internal/logging"
	"siterag/internal/server"
	"siterag/internal/tui"
)

var (
	cfgPath  string
	logLevel string
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "siterag",
		Short:        "Crawl a website and answer questions about it",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (default ./siterag.yaml or ~/.config/siterag/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level from the config")
	root.AddCommand(serveCmd(), indexCmd(), crawlCmd(), askCmd(), chatCmd())
	return root
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// setup loads the config, builds the logger and assembles the pipeline.
func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a, err := buildApp(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Crawl and index the site, then serve the query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signalContext()
			defer stop()

			srv := &http.Server{
				Addr: a.cfg.Server.Addr,
				Handler: server.New(a.service, server.Config{
					RequestTimeout:  time.Duration(a.cfg.Server.RequestTimeoutSecs) * time.Second,
					DefaultTopK:     a.cfg.Server.DefaultTopK,
					DefaultMinScore: a.cfg.Server.DefaultMinScore,
					Gatherer:        a.registry,
					Logger:          a.log,
				}).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// The API answers /readyz with 503 until the first index is built.
			go func() {
				if _, err := a.service.Bootstrap(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.log.Error("bootstrap failed", zap.Error(err))
					stop()
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("listening", zap.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.log.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Crawl the site and rebuild the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signalContext()
			defer stop()
			n, err := a.service.Bootstrap(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks\n", n)
			return nil
		},
	}
}

func crawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl the site and print paragraphs as JSON lines without indexing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signalContext()
			defer stop()

			start := a.cfg.Crawl.StartURL
			if len(args) == 1 {
				start = args[0]
			}
			paragraphs, trav := a.crawler.Crawl(ctx, start, a.cfg.Crawl.Depth)
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, p := range paragraphs {
				if err := enc.Encode(p); err != nil {
					return err
				}
			}
			a.log.Info("crawl finished",
				zap.Strings("visited", trav.Visited()),
				zap.Int("paragraphs", len(paragraphs)))
			return nil
		},
	}
}

func askCmd() *cobra.Command {
	var (
		topK     int
		minScore float64
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Index the site and answer one question as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signalContext()
			defer stop()
			if _, err := a.service.Bootstrap(ctx); err != nil {
				return err
			}
			if !cmd.Flags().Changed("top-k") {
				topK = a.cfg.Server.DefaultTopK
			}
			if !cmd.Flags().Changed("min-score") {
				minScore = a.cfg.Server.DefaultMinScore
			}
			resp, err := a.service.HandleQuery(ctx, domain.QueryRequest{
				Query:    strings.Join(args, " "),
				TopK:     topK,
				MinScore: minScore,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 10, "Maximum chunks to use as context")
	cmd.Flags().Float64Var(&minScore, "min-score", 0.3, "Minimum rerank score in [0,1]")
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Index the site and open the interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signalContext()
			defer stop()
			n, err := a.service.Bootstrap(ctx)
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("%s: %d chunks indexed", a.cfg.Crawl.StartURL, n)
			m := tui.New(a.service, summary, tui.Options{
				TopK:     a.cfg.Server.DefaultTopK,
				MinScore: a.cfg.Server.DefaultMinScore,
				Timeout:  time.Duration(a.cfg.Server.RequestTimeoutSecs) * time.Second,
			})
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}
