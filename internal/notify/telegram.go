package notify

import (
	"context"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/config"
	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/observability"
)

// ChatGateway — дополнительный канал для преподавателей, привязавших Telegram.
type ChatGateway interface {
	SendChat(ctx context.Context, chatID int64, text string) error
}

type chatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramChat struct {
	bot chatSender
}

// NewChatGateway — nil без токена или если бот не отвечает на getMe.
func NewChatGateway(cfg *config.Config, log *zap.Logger) ChatGateway {
	if cfg.Telegram.BotToken == "" {
		return nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, tgbotapi.APIEndpoint,
		&http.Client{Timeout: ctxutil.DefaultGatewayTimeout})
	if err != nil {
		log.Warn("telegram bot init failed, chat reminders disabled", zap.Error(err))
		return nil
	}
	log.Info("telegram bot ready", zap.String("username", bot.Self.UserName))
	return &TelegramChat{bot: bot}
}

func (t *TelegramChat) SendChat(ctx context.Context, chatID int64, text string) error {
	_, err := callGateway(ctx, func() (tgbotapi.Message, error) {
		return t.bot.Send(tgbotapi.NewMessage(chatID, text))
	})
	if isSystemErr(err) {
		observability.CaptureErr(err)
	}
	return err
}

// Считаем системными: 5xx, 429, timeout. 400-ки и типичные телеграм-валидации в Sentry не шлём.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, marker := range []string{"429", "500", "502", "503", "504", "timeout"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
