// Package notifytest — канал уведомлений для тестов: ничего не отправляет, всё запоминает.
package notifytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Spok95/tutoring-platform/internal/notify"
)

// Sent — одно «отправленное» сообщение в Recorder.
type Sent struct {
	Channel string // sms|email|chat
	To      string
	Subject string
	Body    string
}

// Recorder — синхронная реализация всех каналов, запоминающая отправленное.
// Fail, если задан, решает, вернуть ли ошибку для конкретного получателя.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	seq  int
	Fail func(channel, to string) error
}

func NewRecorder() *Recorder { return &Recorder{} }

var (
	_ notify.SMSGateway   = (*Recorder)(nil)
	_ notify.EmailGateway = (*Recorder)(nil)
	_ notify.ChatGateway  = (*Recorder)(nil)
)

func (r *Recorder) record(s Sent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		if err := r.Fail(s.Channel, s.To); err != nil {
			return "", err
		}
	}
	r.seq++
	r.sent = append(r.sent, s)
	return fmt.Sprintf("rec_%d", r.seq), nil
}

func (r *Recorder) SendSMS(_ context.Context, to, body string) (notify.SMSResult, error) {
	id, err := r.record(Sent{Channel: "sms", To: to, Body: body})
	if err != nil {
		return notify.SMSResult{}, err
	}
	return notify.SMSResult{MessageID: id, Status: "queued"}, nil
}

func (r *Recorder) ValidatePhoneNumber(phone string) notify.PhoneCheck {
	return notify.ValidatePhone(phone, "FR")
}

func (r *Recorder) GetMessageStatus(_ context.Context, _ string) (notify.MessageStatus, error) {
	return notify.MessageStatus{Status: "delivered"}, nil
}

func (r *Recorder) SendEmail(_ context.Context, to, subject, html string) (notify.EmailResult, error) {
	id, err := r.record(Sent{Channel: "email", To: to, Subject: subject, Body: html})
	if err != nil {
		return notify.EmailResult{}, err
	}
	return notify.EmailResult{MessageID: id, Status: "sent"}, nil
}

func (r *Recorder) SendChat(_ context.Context, chatID int64, text string) error {
	_, err := r.record(Sent{Channel: "chat", To: fmt.Sprint(chatID), Body: text})
	return err
}

// Sent — копия отправленного по каналу ("" — все каналы).
func (r *Recorder) Sent(channel string) []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sent
	for _, s := range r.sent {
		if channel == "" || s.Channel == channel {
			out = append(out, s)
		}
	}
	return out
}
