package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var (
	frWeekdays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	frMonths   = [...]string{"janvier", "février", "mars", "avril", "mai", "juin",
		"juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

// FormatLessonTime — «lundi 6 janvier 2025 à 10:00» в поясе loc.
func FormatLessonTime(t time.Time, loc *time.Location) string {
	lt := t.In(loc)
	return fmt.Sprintf("%s %d %s %d à %s",
		frWeekdays[lt.Weekday()], lt.Day(), frMonths[lt.Month()-1], lt.Year(), lt.Format("15:04"))
}

const layout = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;color:#222">
<p>Bonjour {{.Recipient}},</p>
{{template "content" .}}
<p style="color:#888;font-size:12px">Cet e-mail a été envoyé automatiquement, merci de ne pas y répondre.</p>
</body></html>`

var (
	confirmationTpl = mustTemplate("confirmation", `{{define "content"}}
<p>Votre cours avec <b>{{.Professor}}</b> est confirmé pour le <b>{{.When}}</b>.</p>
<p>Un cours a été réservé sur votre solde de leçons.</p>{{end}}`)

	cancellationTpl = mustTemplate("cancellation", `{{define "content"}}
<p><b>{{.Professor}}</b> a annulé le cours prévu le <b>{{.When}}</b>.</p>
<p>Aucune leçon ne vous sera décomptée pour ce créneau.</p>{{end}}`)

	reminderTpl = mustTemplate("reminder", `{{define "content"}}
<p>Votre cours avec <b>{{.Professor}}</b> commence bientôt : <b>{{.When}}</b>.</p>{{end}}`)
)

type lessonData struct {
	Recipient string
	Professor string
	When      string
}

func mustTemplate(name, content string) *template.Template {
	return template.Must(template.Must(template.New(name).Parse(layout)).Parse(content))
}

func render(t *template.Template, data lessonData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
