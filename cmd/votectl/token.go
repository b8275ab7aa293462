package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ig-vote-bot/internal/app"
	"ig-vote-bot/internal/domain"
)

func tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Хранилище токенов Instagram и WhatsApp",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <instagram|whatsapp> <token>",
			Short: "Зашифровать и сохранить токен",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				tokenType, err := parseTokenType(args[0])
				if err != nil {
					return err
				}
				return withCore(cmd, func(ctx context.Context, core *app.Core) error {
					cred, err := core.Store.Set(ctx, tokenType, strings.TrimSpace(args[1]))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s сохранён %s\n", cred.Type, cred.CreatedAt.Format(time.RFC3339))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show <instagram|whatsapp>",
			Short: "Показать возраст токена без раскрытия значения",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				tokenType, err := parseTokenType(args[0])
				if err != nil {
					return err
				}
				return withCore(cmd, func(ctx context.Context, core *app.Core) error {
					cred, err := core.Store.Get(ctx, tokenType)
					if err != nil {
						return err
					}
					age := time.Since(cred.CreatedAt).Truncate(time.Hour)
					fmt.Fprintf(cmd.OutOrStdout(), "тип: %s\nтокен: %s\nвыпущен: %s\nвозраст: %s\nнужно продление: %t\n",
						cred.Type, maskToken(cred.Token), cred.CreatedAt.Format(time.RFC3339), age, core.Tokens.NeedsRefresh(cred))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "refresh <instagram|whatsapp>",
			Short: "Продлить long-lived токен немедленно",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				tokenType, err := parseTokenType(args[0])
				if err != nil {
					return err
				}
				return withCore(cmd, func(ctx context.Context, core *app.Core) error {
					cred, err := core.Tokens.ForceRefresh(ctx, tokenType)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s продлён %s\n", cred.Type, cred.CreatedAt.Format(time.RFC3339))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "exchange <short-lived-token>",
			Short: "Обменять short-lived токен Instagram на long-lived и сохранить",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCore(cmd, func(ctx context.Context, core *app.Core) error {
					cred, err := core.Tokens.Exchange(ctx, domain.TokenInstagram, strings.TrimSpace(args[0]))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s сохранён %s\n", cred.Type, cred.CreatedAt.Format(time.RFC3339))
					return nil
				})
			},
		},
	)
	return cmd
}

func parseTokenType(raw string) (domain.TokenType, error) {
	t := domain.TokenType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("неизвестный тип токена %q: ожидается instagram или whatsapp", raw)
	}
	return t, nil
}

// maskToken оставляет только края токена.
func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", 8) + token[len(token)-4:]
}
