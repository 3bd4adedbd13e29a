// Package cron — периодический проход: напоминания о ближайших уроках
// и добор списаний за прошедшие уроки, которые так и не были оценены.
package cron

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/metrics"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/notify"
	"github.com/Spok95/tutoring-platform/internal/observability"
	"github.com/Spok95/tutoring-platform/internal/schedule"
)

type SlotStore interface {
	DueForReminder(ctx context.Context, weekStart time.Time, dayOfWeek int) ([]models.Slot, error)
	BookedInWeeks(ctx context.Context, fromWeek, toWeek time.Time) ([]models.Slot, error)
	ClaimReminder(ctx context.Context, slotID int64) (bool, error)
}

type ReservationStore interface {
	ActiveDetailsBySlots(ctx context.Context, slotIDs []int64) ([]models.ReservationDetail, error)
	MissingConsume(ctx context.Context, slotIDs []int64) ([]models.Reservation, error)
}

type UserStore interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]models.User, error)
}

type Consumer interface {
	Consume(ctx context.Context, studentID, reservationID int64) error
}

type ReminderMailer interface {
	SendLessonReminderEmail(ctx context.Context, l notify.Lesson) (notify.EmailResult, error)
}

type Options struct {
	Location       *time.Location
	ReminderWindow time.Duration
	BackfillWindow time.Duration
}

// Report — итоги одного прохода. Ошибки отдельных слотов/броней только считаются.
type Report struct {
	Due          int `json:"due"`
	Reminded     int `json:"reminded"`
	SMSSent      int `json:"smsSent"`
	SMSFailed    int `json:"smsFailed"`
	SMSSkipped   int `json:"smsSkipped"`
	ChatSent     int `json:"chatSent"`
	EmailsSent   int `json:"emailsSent"`
	EmailsFailed int `json:"emailsFailed"`
	Backfilled   int `json:"backfilled"`
	Errors       int `json:"errors"`
}

// Err — не nil, если в проходе были сбои (для метрик планировщика).
func (r Report) Err() error {
	if r.Errors == 0 && r.SMSFailed == 0 && r.EmailsFailed == 0 {
		return nil
	}
	return fmt.Errorf("cron: %d errors, %d sms failed, %d emails failed", r.Errors, r.SMSFailed, r.EmailsFailed)
}

type Service struct {
	slots        SlotStore
	reservations ReservationStore
	users        UserStore
	ledger       Consumer
	sms          notify.SMSGateway  // nil — SMS не настроены
	chat         notify.ChatGateway // nil — Telegram не настроен
	mail         ReminderMailer
	opts         Options
	log          *zap.Logger
}

func New(slots SlotStore, reservations ReservationStore, users UserStore, ledger Consumer,
	sms notify.SMSGateway, chat notify.ChatGateway, mail ReminderMailer, opts Options, log *zap.Logger) *Service {
	return &Service{
		slots:        slots,
		reservations: reservations,
		users:        users,
		ledger:       ledger,
		sms:          sms,
		chat:         chat,
		mail:         mail,
		opts:         opts,
		log:          log,
	}
}

// Authorized — сравнение общего секрета за постоянное время. Пустой секрет не принимается.
func Authorized(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// Run — напоминания, затем добор списаний. Сбой одного шага не отменяет другой.
func (s *Service) Run(ctx context.Context, now time.Time) Report {
	var rep Report
	s.remind(ctx, now, &rep)
	s.backfill(ctx, now, &rep)

	s.log.Info("cron run finished",
		zap.Time("now", now),
		zap.Int("due", rep.Due), zap.Int("reminded", rep.Reminded),
		zap.Int("sms_sent", rep.SMSSent), zap.Int("sms_failed", rep.SMSFailed), zap.Int("sms_skipped", rep.SMSSkipped),
		zap.Int("chat_sent", rep.ChatSent),
		zap.Int("emails_sent", rep.EmailsSent), zap.Int("emails_failed", rep.EmailsFailed),
		zap.Int("backfilled", rep.Backfilled), zap.Int("errors", rep.Errors))
	return rep
}

func (s *Service) remind(ctx context.Context, now time.Time, rep *Report) {
	loc := s.opts.Location
	candidates, err := s.slots.DueForReminder(ctx, schedule.WeekStart(now, loc), schedule.DayOffset(now, loc))
	if err != nil {
		s.fail(rep, "cron.remind", err)
		return
	}

	var due []models.Slot
	for _, sl := range candidates {
		if schedule.ReminderDue(sl.StartsAt(loc), now, s.opts.ReminderWindow) {
			due = append(due, sl)
		}
	}
	rep.Due = len(due)
	if len(due) == 0 {
		return
	}

	slotIDs := make([]int64, 0, len(due))
	profIDs := make([]int64, 0, len(due))
	for _, sl := range due {
		slotIDs = append(slotIDs, sl.ID)
		profIDs = append(profIDs, sl.ProfessorID)
	}
	details, err := s.reservations.ActiveDetailsBySlots(ctx, slotIDs)
	if err != nil {
		s.fail(rep, "cron.remind", err)
		return
	}
	bySlot := make(map[int64][]models.ReservationDetail, len(due))
	for _, d := range details {
		bySlot[d.SlotID] = append(bySlot[d.SlotID], d)
	}
	professors, err := s.users.GetMany(ctx, profIDs)
	if err != nil {
		// без преподавателей всё равно можно написать ученикам
		s.fail(rep, "cron.remind", err)
		professors = map[int64]models.User{}
	}

	for _, sl := range due {
		s.remindSlot(ctx, sl, professors[sl.ProfessorID], bySlot[sl.ID], rep)
	}
}

func (s *Service) remindSlot(ctx context.Context, sl models.Slot, prof models.User, students []models.ReservationDetail, rep *Report) {
	defer observability.RecoverTo("cron.remind_slot")

	claimed, err := s.slots.ClaimReminder(ctx, sl.ID)
	if err != nil {
		s.fail(rep, "cron.claim", err, zap.Int64("slot_id", sl.ID))
		return
	}
	if !claimed {
		return
	}
	rep.Reminded++

	startsAt := sl.StartsAt(s.opts.Location)
	text := fmt.Sprintf("Rappel : votre cours commence à %s (%d élève(s)).",
		startsAt.In(s.opts.Location).Format("15:04"), len(students))

	s.remindProfessor(ctx, sl, prof, text, rep)

	for _, st := range students {
		_, err := s.mail.SendLessonReminderEmail(ctx, notify.Lesson{
			To:        st.StudentEmail,
			Student:   st.StudentName,
			Professor: st.ProfessorName,
			StartsAt:  startsAt,
		})
		if err != nil {
			rep.EmailsFailed++
			metrics.Notification("email", "failed")
			s.log.Warn("reminder email failed",
				zap.Int64("slot_id", sl.ID), zap.Int64("reservation_id", st.ID), zap.Error(err))
			observability.CaptureErrWith(err, map[string]string{"op": "cron.email"})
			continue
		}
		rep.EmailsSent++
		metrics.Notification("email", "sent")
	}
}

func (s *Service) remindProfessor(ctx context.Context, sl models.Slot, prof models.User, text string, rep *Report) {
	switch {
	case s.sms == nil:
		rep.SMSSkipped++
		metrics.Notification("sms", "skipped")
		s.log.Warn("sms gateway not configured, professor reminder skipped", zap.Int64("slot_id", sl.ID))
	case prof.Phone == nil || *prof.Phone == "":
		rep.SMSSkipped++
		metrics.Notification("sms", "skipped")
	default:
		res, err := s.sms.SendSMS(ctx, *prof.Phone, text)
		if err != nil {
			rep.SMSFailed++
			metrics.Notification("sms", "failed")
			s.log.Warn("reminder sms failed", zap.Int64("slot_id", sl.ID), zap.Int64("professor_id", sl.ProfessorID), zap.Error(err))
			observability.CaptureErrWith(err, map[string]string{"op": "cron.sms"})
		} else {
			rep.SMSSent++
			metrics.Notification("sms", "sent")
			s.log.Debug("reminder sms sent", zap.Int64("slot_id", sl.ID), zap.String("message_id", res.MessageID))
		}
	}

	if s.chat == nil || prof.TelegramChatID == nil {
		return
	}
	if err := s.chat.SendChat(ctx, *prof.TelegramChatID, text); err != nil {
		metrics.Notification("telegram", "failed")
		s.log.Warn("reminder telegram failed", zap.Int64("slot_id", sl.ID), zap.Error(err))
		return
	}
	rep.ChatSent++
	metrics.Notification("telegram", "sent")
}

func (s *Service) backfill(ctx context.Context, now time.Time, rep *Report) {
	loc := s.opts.Location
	from, to := schedule.BackfillRange(now, s.opts.BackfillWindow)
	slots, err := s.slots.BookedInWeeks(ctx, schedule.WeekStart(from, loc), schedule.WeekStart(to, loc))
	if err != nil {
		s.fail(rep, "cron.backfill", err)
		return
	}

	var ids []int64
	for _, sl := range slots {
		if schedule.InBackfill(sl.StartsAt(loc), now, s.opts.BackfillWindow) {
			ids = append(ids, sl.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	missing, err := s.reservations.MissingConsume(ctx, ids)
	if err != nil {
		s.fail(rep, "cron.backfill", err)
		return
	}
	for _, r := range missing {
		if err := s.ledger.Consume(ctx, r.StudentID, r.ID); err != nil {
			s.fail(rep, "cron.backfill", err, zap.Int64("reservation_id", r.ID))
			continue
		}
		rep.Backfilled++
	}
}

func (s *Service) fail(rep *Report, op string, err error, fields ...zap.Field) {
	rep.Errors++
	s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	observability.CaptureErrWith(err, map[string]string{"op": op})
}
