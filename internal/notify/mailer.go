package notify

import (
	"context"
	"html/template"
	"time"

	"github.com/Spok95/tutoring-platform/internal/ctxutil"
)

// Mailer — типовые письма поверх EmailGateway: рендер шаблона с временем урока в опорном поясе.
type Mailer struct {
	gw  EmailGateway
	loc *time.Location
}

func NewMailer(gw EmailGateway, loc *time.Location) *Mailer {
	return &Mailer{gw: gw, loc: loc}
}

// Lesson — участники и время урока для писем.
type Lesson struct {
	To        string
	Student   string
	Professor string
	StartsAt  time.Time
}

func (m *Mailer) SendSlotConfirmationEmail(ctx context.Context, l Lesson) (EmailResult, error) {
	return m.send(ctx, l, "Confirmation de votre cours", confirmationTpl)
}

func (m *Mailer) SendProfessorCancellationEmail(ctx context.Context, l Lesson) (EmailResult, error) {
	return m.send(ctx, l, "Annulation de votre cours", cancellationTpl)
}

func (m *Mailer) SendLessonReminderEmail(ctx context.Context, l Lesson) (EmailResult, error) {
	return m.send(ctx, l, "Votre cours commence bientôt", reminderTpl)
}

func (m *Mailer) send(ctx context.Context, l Lesson, subject string, tpl *template.Template) (EmailResult, error) {
	html, err := render(tpl, lessonData{
		Recipient: l.Student,
		Professor: l.Professor,
		When:      FormatLessonTime(l.StartsAt, m.loc),
	})
	if err != nil {
		return EmailResult{}, err
	}
	ctx, cancel := ctxutil.WithGatewayTimeout(ctx)
	defer cancel()
	return m.gw.SendEmail(ctx, l.To, subject, html)
}
