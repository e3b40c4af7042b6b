package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/procrastinando/telegrambot-anythingllm/internal/anythingllm"
	"github.com/procrastinando/telegrambot-anythingllm/internal/bot"
	"github.com/procrastinando/telegrambot-anythingllm/internal/logutil"
	"github.com/procrastinando/telegrambot-anythingllm/internal/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll Telegram and provision AnythingLLM accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			botToken := strings.TrimSpace(flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if botToken == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or ANYLLM_TELEGRAM_BOT_TOKEN)")
			}
			serverURL := strings.TrimSpace(flagOrViperString(cmd, "server-url", "server.url"))
			if serverURL == "" {
				return fmt.Errorf("missing server.url (set via --server-url or ANYLLM_SERVER_URL)")
			}
			externalURL := strings.TrimSpace(flagOrViperString(cmd, "server-external-url", "server.external_url"))
			if externalURL == "" {
				return fmt.Errorf("missing server.external_url (set via --server-external-url or ANYLLM_SERVER_EXTERNAL_URL)")
			}
			apiKey := strings.TrimSpace(flagOrViperString(cmd, "server-api-key", "server.api_key"))
			if apiKey == "" {
				return fmt.Errorf("missing server.api_key (set via --server-api-key or ANYLLM_SERVER_API_KEY)")
			}
			workspaceSlug := strings.TrimSpace(flagOrViperString(cmd, "server-workspace-slug", "server.workspace_slug"))
			if workspaceSlug == "" {
				return fmt.Errorf("missing server.workspace_slug (set via --server-workspace-slug or ANYLLM_SERVER_WORKSPACE_SLUG)")
			}
			welcomeMessage := flagOrViperString(cmd, "welcome-message", "welcome_message")

			pollTimeout := flagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout")
			if pollTimeout <= 0 {
				pollTimeout = 10 * time.Second
			}
			retryDelay := flagOrViperDuration(cmd, "retry-delay", "telegram.retry_delay")
			if retryDelay <= 0 {
				retryDelay = 5 * time.Second
			}
			passwordLength := flagOrViperInt(cmd, "password-length", "password_length")

			telegramAPIURL := strings.TrimSpace(viper.GetString("telegram.api_url"))

			httpClient := &http.Client{Timeout: 60 * time.Second}
			tg := telegram.New(httpClient, telegramAPIURL, botToken)
			admin := anythingllm.New(&http.Client{Timeout: 30 * time.Second}, serverURL, apiKey, passwordLength)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			me, err := tg.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("telegram getMe: %w", err)
			}

			logger.Info("telegram_start",
				"bot_username", me.Username,
				"bot_id", me.ID,
				"server_url", serverURL,
				"workspace_slug", workspaceSlug,
				"poll_timeout", pollTimeout.String(),
				"retry_delay", retryDelay.String(),
			)
			logger.Info("botfather_reminder",
				"hint", "set the bot description/welcome message manually in BotFather")

			handler, err := bot.NewHandler(bot.HandlerOptions{
				Directory:      admin,
				Messenger:      tg,
				WorkspaceSlug:  workspaceSlug,
				ExternalURL:    externalURL,
				WelcomeMessage: welcomeMessage,
				Logger:         logger,
			})
			if err != nil {
				return err
			}

			loop, err := bot.NewLoop(bot.LoopOptions{
				Source:      tg,
				Handler:     handler,
				PollTimeout: pollTimeout,
				RetryDelay:  retryDelay,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			err = loop.Run(ctx)
			if errors.Is(err, context.Canceled) {
				logger.Info("telegram_stop", "last_update_id", loop.Cursor())
				return nil
			}
			return err
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("server-url", "", "AnythingLLM server base URL (admin API).")
	cmd.Flags().String("server-external-url", "", "AnythingLLM URL shown to users in replies.")
	cmd.Flags().String("server-api-key", "", "AnythingLLM admin API key.")
	cmd.Flags().String("server-workspace-slug", "", "Workspace every provisioned account joins.")
	cmd.Flags().String("welcome-message", "", "Optional welcome text sent before account creation.")
	cmd.Flags().Duration("poll-timeout", 10*time.Second, "Long polling timeout for getUpdates.")
	cmd.Flags().Duration("retry-delay", 5*time.Second, "Fixed delay before retrying after a polling failure.")
	cmd.Flags().Int("password-length", 0, "Generated password length (default 10).")

	return cmd
}
