// Command votectl — операторские команды: схема, токены, промпты, кандидаты, раунды.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ig-vote-bot/internal/app"
	"ig-vote-bot/internal/infra/config"
	applog "ig-vote-bot/internal/infra/log"
)

const programName = "votectl"

var globalFlags = struct {
	page string
}{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           programName,
		Short:         "Управление ботом голосования",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&globalFlags.page, "page", "", "страница Instagram (по умолчанию IG_PAGE)")
	root.AddCommand(
		migrateCommand(),
		tokenCommand(),
		promptCommand(),
		candidateCommand(),
		roundCommand(),
		postCommand(),
		webhookCommand(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

func loadConfig() (config.AppConfig, zerolog.Logger) {
	cfg := config.Load()
	if globalFlags.page != "" {
		cfg.Page = globalFlags.page
	}
	return cfg, applog.NewLogger(cfg.AppEnv, programName)
}

// withCore подключает общие зависимости на время команды.
func withCore(cmd *cobra.Command, fn func(ctx context.Context, core *app.Core) error) error {
	cfg, logger := loadConfig()
	core, err := app.NewCore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(cmd.Context(), core)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить схему базы данных",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(cmd, func(_ context.Context, _ *app.Core) error {
				fmt.Fprintln(cmd.OutOrStdout(), "схема применена")
				return nil
			})
		},
	}
}
