package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ig-vote-bot/internal/adapters/telegram"
	"ig-vote-bot/internal/app"
	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/queue"
	"ig-vote-bot/internal/usecase/pipeline"
)

func promptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Очередь промптов ежедневных постов",
	}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Показать промпты в порядке публикации",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(cmd, func(ctx context.Context, core *app.Core) error {
				prompts, err := core.Repo.ListPrompts(ctx, limit)
				if err != nil {
					return err
				}
				for _, p := range prompts {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", p.ID, p.CreatedAt.Format(time.DateOnly), p.Prompt)
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "сколько промптов показать")
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <prompt...>",
			Short: "Добавить промпт в конец очереди",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				text := strings.TrimSpace(strings.Join(args, " "))
				if text == "" {
					return domain.ErrEmptyPrompt
				}
				return withCore(cmd, func(ctx context.Context, core *app.Core) error {
					p, err := core.Repo.AddPrompt(ctx, text)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "промпт %d добавлен\n", p.ID)
					return nil
				})
			},
		},
		list,
	)
	return cmd
}

func candidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidate",
		Short: "Пул кандидатов текущего раунда",
	}
	var postID, folder string
	add := &cobra.Command{
		Use:   "add <image-url>",
		Short: "Добавить изображение в пул",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, func(ctx context.Context, core *app.Core) error {
				rounds, err := core.Voting(ctx, nil, nil)
				if err != nil {
					return err
				}
				return rounds.AddImage(ctx, domain.VotingImage{
					ImageURL:        strings.TrimSpace(args[0]),
					InstagramPostID: postID,
					Folder:          folder,
				})
			})
		},
	}
	add.Flags().StringVar(&postID, "post-id", "", "id поста Instagram для метрик")
	add.Flags().StringVar(&folder, "folder", "", "папка CDN для очистки после раунда")
	cmd.AddCommand(
		add,
		&cobra.Command{
			Use:   "list",
			Short: "Показать кандидатов с голосами",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCore(cmd, func(ctx context.Context, core *app.Core) error {
					images, err := core.Repo.ListImages(ctx)
					if err != nil {
						return err
					}
					for i, img := range images {
						fmt.Fprintf(cmd.OutOrStdout(), "#%d\t%d голосов\tотправлено=%t\t%s\n", i+1, img.Votes, img.Sent(), img.ImageURL)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func roundCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "round",
		Short: "Открыть или закрыть раунд голосования",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(cmd, func(ctx context.Context, core *app.Core) error {
				bot, err := core.Bot()
				if err != nil {
					return err
				}
				notifier := core.Notifier(bot)
				rounds, err := core.Voting(ctx, telegram.NewMessenger(bot, core.Page.VotingChatID), notifier)
				if err != nil {
					return err
				}
				res, err := rounds.Run(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func postCommand() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Поставить задачи ежедневной публикации в очередь",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(cmd, func(ctx context.Context, core *app.Core) error {
				cfg := core.Config
				q, closeQueue, err := queue.Open(cfg.Queues.Driver, cfg.RabbitURL, core.Redis, cfg.Queues.Posts)
				if err != nil {
					return err
				}
				defer closeQueue()
				jobs, err := pipeline.EnqueueDaily(ctx, q, core.Page.Name, count, domain.PostCauseManual, time.Now())
				for _, job := range jobs {
					fmt.Fprintln(cmd.OutOrStdout(), job.ID)
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "количество постов")
	return cmd
}
