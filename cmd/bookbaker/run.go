package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bookbaker/internal/config"
	"github.com/jackzampolin/bookbaker/internal/pipeline"
	"github.com/jackzampolin/bookbaker/internal/store"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl, translate, and export all configured tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		level := new(slog.LevelVar)
		level.Set(config.ParseLevel(cfg.Logging.Level))
		logger := newLogger(cfg.Logging.Format, level)

		// Log level follows config edits without a restart.
		cm.OnChange(func(c *config.Config) {
			level.Set(config.ParseLevel(c.Logging.Level))
			logger.Info("config reloaded", "log_level", c.Logging.Level)
		})
		cm.WatchConfig()

		client, err := newHTTPClient(cfg.Client)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		svc := &svcctx.Services{Store: st, Client: client, Logger: logger}
		roles, err := config.BuildRoles(cfg, svc)
		if err != nil {
			return err
		}

		if len(cfg.Tasks) == 0 {
			logger.Warn("no tasks configured")
			return nil
		}

		// Task failures are logged per task; only setup errors exit
		// nonzero.
		if err := pipeline.Run(cmd.Context(), svc, roles, cfg.Tasks); err != nil {
			logger.Error("run finished with failures", "error", err)
		} else {
			logger.Info("run finished")
		}
		return nil
	},
}

func newLogger(format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newHTTPClient(cfg config.ClientCfg) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
	if cfg.UserAgent != "" {
		client.Transport = &userAgentTransport{base: transport, agent: cfg.UserAgent}
	}
	return client, nil
}

// userAgentTransport stamps the configured User-Agent on every request.
type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.base.RoundTrip(req)
}
