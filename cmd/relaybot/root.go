package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relaybot",
		Short:         "Telegram relay for chat, image, voice and search providers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().String("providers-file", "", "YAML provider layout (overrides PROVIDERS_FILE)")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRemindersCmd())
	return cmd
}

// loadConfig parses the environment, applies flag overrides and installs the logger.
func loadConfig(cmd *cobra.Command, validate bool) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if f, _ := cmd.Flags().GetString("providers-file"); f != "" {
		cfg.ProvidersFile = f
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	slog.SetDefault(observability.SetupLogger(cfg))
	return cfg, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
