package main

import (
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/smartsummary/config"
	"github.com/mohammad-safakhou/smartsummary/internal/analysis"
	"github.com/mohammad-safakhou/smartsummary/internal/conversation"
	"github.com/mohammad-safakhou/smartsummary/internal/memory"
	"github.com/mohammad-safakhou/smartsummary/internal/provider"
	"github.com/mohammad-safakhou/smartsummary/internal/server"
	"github.com/mohammad-safakhou/smartsummary/internal/telemetry"
)

// Execute runs the root command.
func Execute() {
	root := &cobra.Command{Use: "smartsummary"}
	root.AddCommand(serveCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD() *cobra.Command {
	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis backend HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cfg)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return serve
}

func runServe(cfg *config.Config) error {
	if cfg.Providers.Anthropic.APIKey == "" {
		log.Printf("WARNING: ANTHROPIC_API_KEY not set; credibility and chat will run degraded")
	}
	if cfg.Providers.Google.APIKey == "" {
		log.Printf("WARNING: GOOGLE_API_KEY not set; summarization and fact checking will run degraded")
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)

	caps := &analysis.Capabilities{
		Google:    provider.NewGeminiProvider(cfg.Providers.Google),
		Anthropic: provider.NewAnthropicProvider(cfg.Providers.Anthropic),
		Telemetry: tele,
	}

	var (
		cache     analysis.Cache
		convStore conversation.Store
		memStore  memory.Store
	)
	switch cfg.Storage.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		cache = analysis.NewRedisCache(client)
		convStore = conversation.NewRedisStore(client)
		memStore = memory.NewRedisStore(client)
	default:
		cache = analysis.NewMemoryCache()
		convStore = conversation.NewMemoryStore()
		memStore = memory.NewMemoryStore()
	}

	chat := conversation.NewService(convStore, caps.Anthropic, tele)
	index := memory.NewIndex(cfg, memStore, caps)
	orch := analysis.NewOrchestrator(cfg, tele, caps, cache, chat, index)

	return server.New(cfg, orch, chat, index, tele).Run()
}
