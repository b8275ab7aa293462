package main

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"ig-vote-bot/internal/app"
	"ig-vote-bot/internal/domain"
)

// webhookParams собирает параметры setWebhook. Секрет Telegram вернёт в заголовке каждого обновления.
func webhookParams(url, secret string) tgbotapi.Params {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	params["allowed_updates"] = `["message","callback_query"]`
	return params
}

func webhookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Вебхук Telegram",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Зарегистрировать TG_WEBHOOK_URL с TG_WEBHOOK_SECRET",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCore(cmd, func(_ context.Context, core *app.Core) error {
					tg := core.Config.Telegram
					if tg.WebhookURL == "" {
						return fmt.Errorf("%w: не задан TG_WEBHOOK_URL", domain.ErrConfiguration)
					}
					bot, err := core.Bot()
					if err != nil {
						return err
					}
					if _, err := bot.MakeRequest("setWebhook", webhookParams(tg.WebhookURL, tg.WebhookSecret)); err != nil {
						return fmt.Errorf("setWebhook: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "вебхук %s зарегистрирован\n", tg.WebhookURL)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Удалить вебхук",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCore(cmd, func(_ context.Context, core *app.Core) error {
					bot, err := core.Bot()
					if err != nil {
						return err
					}
					if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
						return fmt.Errorf("deleteWebhook: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "вебхук удалён")
					return nil
				})
			},
		},
	)
	return cmd
}
