package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/config"
	"github.com/Spok95/tutoring-platform/internal/ctxutil"
)

const devSimPrefix = "dev_sim_"

type SMSResult struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type PhoneCheck struct {
	IsValid         bool   `json:"isValid"`
	FormattedNumber string `json:"formattedNumber"`
}

type MessageStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type SMSGateway interface {
	SendSMS(ctx context.Context, to, body string) (SMSResult, error)
	ValidatePhoneNumber(phone string) PhoneCheck
	GetMessageStatus(ctx context.Context, id string) (MessageStatus, error)
}

// TwilioSMS — SMS через Twilio. В devMode сеть не трогаем: возвращаем dev_sim_<unix-ms>.
type TwilioSMS struct {
	client  *twilio.RestClient
	from    string
	region  string
	devMode bool
	log     *zap.Logger
	now     func() time.Time
}

// NewSMSGateway — nil, если креды Twilio не заданы: вызывающие пропускают SMS с предупреждением.
// Вне prod отправка симулируется, пока не включён SMS_FORCE_SEND.
func NewSMSGateway(cfg *config.Config, log *zap.Logger) SMSGateway {
	if !cfg.Twilio.Configured() {
		log.Warn("twilio credentials are missing, sms disabled")
		return nil
	}
	return NewTwilioSMS(cfg.Twilio, !cfg.IsProd() && !cfg.Twilio.ForceSend, log)
}

func NewTwilioSMS(cfg config.TwilioConfig, devMode bool, log *zap.Logger) *TwilioSMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	client.SetTimeout(ctxutil.DefaultGatewayTimeout)
	region := cfg.DefaultRegion
	if region == "" {
		region = "FR"
	}
	return &TwilioSMS{
		client:  client,
		from:    cfg.FromNumber,
		region:  region,
		devMode: devMode,
		log:     log.Named("sms"),
		now:     time.Now,
	}
}

func (t *TwilioSMS) SendSMS(ctx context.Context, to, body string) (SMSResult, error) {
	check := t.ValidatePhoneNumber(to)
	if !check.IsValid {
		return SMSResult{}, fmt.Errorf("send sms: invalid phone number %q", to)
	}

	if t.devMode {
		id := fmt.Sprintf("%s%d", devSimPrefix, t.now().UnixMilli())
		t.log.Info("sms simulated", zap.String("to", check.FormattedNumber), zap.String("message_id", id), zap.String("body", body))
		return SMSResult{MessageID: id, Status: "queued"}, nil
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(check.FormattedNumber)
	params.SetFrom(t.from)
	params.SetBody(body)

	msg, err := callGateway(ctx, func() (*twilioApi.ApiV2010Message, error) {
		return t.client.Api.CreateMessage(params)
	})
	if err != nil {
		return SMSResult{}, fmt.Errorf("send sms: %w", err)
	}
	return SMSResult{MessageID: deref(msg.Sid), Status: deref(msg.Status)}, nil
}

// ValidatePhoneNumber — разбор без сети; номера без + трактуются в регионе по умолчанию.
func (t *TwilioSMS) ValidatePhoneNumber(phone string) PhoneCheck {
	return ValidatePhone(phone, t.region)
}

func (t *TwilioSMS) GetMessageStatus(ctx context.Context, id string) (MessageStatus, error) {
	if strings.HasPrefix(id, devSimPrefix) {
		return MessageStatus{Status: "delivered"}, nil
	}
	msg, err := callGateway(ctx, func() (*twilioApi.ApiV2010Message, error) {
		return t.client.Api.FetchMessage(id, &twilioApi.FetchMessageParams{})
	})
	if err != nil {
		return MessageStatus{}, fmt.Errorf("sms status %s: %w", id, err)
	}
	return MessageStatus{Status: deref(msg.Status), Error: deref(msg.ErrorMessage)}, nil
}

// ValidatePhone — разбор номера в E.164; region — регион для номеров без +.
func ValidatePhone(phone, region string) PhoneCheck {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return PhoneCheck{}
	}
	num, err := phonenumbers.Parse(phone, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return PhoneCheck{}
	}
	return PhoneCheck{IsValid: true, FormattedNumber: phonenumbers.Format(num, phonenumbers.E164)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
