package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cfpblens/cfpblens/config"
	"github.com/cfpblens/cfpblens/internal/app"
	"github.com/cfpblens/cfpblens/internal/cfpb"
	"github.com/cfpblens/cfpblens/internal/deeplink"
	"github.com/cfpblens/cfpblens/internal/ratelimit"
	"github.com/cfpblens/cfpblens/internal/screenshot"
	srv "github.com/cfpblens/cfpblens/internal/server"
	"github.com/cfpblens/cfpblens/mcp"
)

func main() {
	root := &cobra.Command{
		Use:   "cfpblens",
		Short: "Query tools, deep links, and spike signals over the CFPB consumer complaint database",
	}
	root.AddCommand(serveCMD(), mcpCMD(), urlCMD(), tokenCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildService assembles the shared service from configuration. The
// screenshot backend is only started when enabled; everything else degrades
// gracefully without it.
func buildService(cfg *config.Config, logger *log.Logger) (*app.Service, func(), error) {
	client := cfpb.New(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, cfg.Upstream.UserAgent)

	svc := &app.Service{
		Upstream: client,
		Logger:   logger,
		Defaults: app.Defaults{
			BaselineWindow:         cfg.Signals.BaselineWindow,
			MinBaselineMean:        cfg.Signals.MinBaselineMean,
			CompanyMinBaselineMean: cfg.Signals.CompanyMinBaselineMean,
		},
	}

	cleanup := func() {}
	if cfg.Screenshot.Enabled {
		capturer, err := screenshot.New(cfg.Screenshot.Timeout, cfg.Upstream.UserAgent)
		if err != nil {
			return nil, nil, fmt.Errorf("screenshot backend: %w", err)
		}
		svc.Shots = capturer
		cleanup = capturer.Close
	}
	return svc, cleanup, nil
}

func buildLimiter(cfg *config.Config) (ratelimit.Limiter, error) {
	rl := cfg.RateLimit
	if rl.RPS <= 0 {
		return ratelimit.Unlimited{}, nil
	}
	if rl.Backend == "redis" {
		window := rl.Window
		if window <= 0 {
			window = time.Minute
		}
		return ratelimit.NewRedis(rl.RedisURL, int64(rl.RPS*window.Seconds()), window)
	}
	return ratelimit.NewMemory(rl.RPS, rl.Burst), nil
}

func serveCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "[HTTP] ", log.LstdFlags)
			svc, cleanup, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			limiter, err := buildLimiter(cfg)
			if err != nil {
				return err
			}
			return srv.New(svc, cfg, limiter, logger).Run()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}

func mcpCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the stdio MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			// stdout carries the JSON-RPC stream; logs go to stderr only
			logger := log.New(os.Stderr, "[MCP] ", log.LstdFlags)
			svc, cleanup, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			return mcp.New(svc, logger).Serve(os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}

func urlCMD() *cobra.Command {
	var tab string
	cmd := &cobra.Command{
		Use:   "url [key=value ...]",
		Short: "Build a dashboard deep link from API parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiParams := make(map[string]any, len(args))
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok || key == "" {
					return fmt.Errorf("argument %q is not key=value", arg)
				}
				if existing, dup := apiParams[key]; dup {
					switch prev := existing.(type) {
					case []any:
						apiParams[key] = append(prev, value)
					default:
						apiParams[key] = []any{prev, value}
					}
				} else {
					apiParams[key] = value
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), deeplink.Build(apiParams, tab, time.Time{}))
			return nil
		},
	}
	cmd.Flags().StringVar(&tab, "tab", "", "dashboard tab (List, Trends, Map)")
	return cmd
}

func tokenCMD() *cobra.Command {
	var cfgPath string
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret not configured")
			}
			signed, err := srv.SignToken(subject, []byte(cfg.Auth.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
