package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/config"
)

type stuckSender struct {
	release chan struct{}
}

func (s *stuckSender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	<-s.release
	return tgbotapi.Message{}, nil
}

type okSender struct {
	sent []int64
}

func (s *okSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	s.sent = append(s.sent, msg.ChatID)
	return tgbotapi.Message{MessageID: 1}, nil
}

func TestSendChat_ReturnsWhenContextExpires(t *testing.T) {
	sender := &stuckSender{release: make(chan struct{})}
	defer close(sender.release)
	chat := &TelegramChat{bot: sender}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := chat.SendChat(ctx, 42, "Rappel")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSendChat_Delivers(t *testing.T) {
	sender := &okSender{}
	chat := &TelegramChat{bot: sender}

	require.NoError(t, chat.SendChat(context.Background(), 42, "Rappel"))
	assert.Equal(t, []int64{42}, sender.sent)
}

func TestNewChatGateway_NoToken(t *testing.T) {
	assert.Nil(t, NewChatGateway(&config.Config{}, zap.NewNop()))
}

func TestCallGateway_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)
	_, err := callGateway(ctx, func() (string, error) {
		<-block
		return "late", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCallGateway_PassesResultThrough(t *testing.T) {
	v, err := callGateway(context.Background(), func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	boom := errors.New("boom")
	_, err = callGateway(context.Background(), func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}
