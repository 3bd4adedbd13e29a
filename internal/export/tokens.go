// Package export — выгрузки в Excel.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/tutoring-platform/internal/models"
)

var eventLabels = map[models.TokenEventType]string{
	models.TokenGrant:   "Crédit",
	models.TokenConsume: "Cours",
	models.TokenRefund:  "Remboursement",
	models.TokenExpire:  "Expiration",
}

// TokenStatement — выписка по урокам ученика: журнал с нарастающим балансом и сводка.
// События ожидаются в порядке created_at.
func TokenStatement(student models.User, events []models.TokenEvent, loc *time.Location, at time.Time) (*excelize.File, error) {
	rows := make([][]any, 0, len(events))
	balance := 0
	for _, ev := range events {
		balance += ev.Delta
		var res any = ""
		if ev.ReservationID != nil {
			res = *ev.ReservationID
		}
		ref := ""
		if ev.ExternalRef != nil {
			ref = *ev.ExternalRef
		}
		label, ok := eventLabels[ev.Type]
		if !ok {
			label = string(ev.Type)
		}
		rows = append(rows, []any{
			ev.CreatedAt.In(loc).Format("02.01.2006 15:04"),
			label,
			ev.Delta,
			res,
			ref,
			balance,
		})
	}

	return NewWorkbook([]SheetSpec{
		{
			Title:  "Historique",
			Header: []string{"Date", "Type", "Variation", "Réservation", "Référence", "Solde"},
			Rows:   rows,
		},
		{
			Title:  "Résumé",
			Header: []string{"Élève", "E-mail", "Solde", "Généré le"},
			Rows:   [][]any{{student.Name, student.Email, balance, at.In(loc).Format("02.01.2006 15:04")}},
		},
	})
}

// StatementFilename — «Relevé de leçons — <имя> — 2025-01-06.xlsx».
func StatementFilename(studentName string, at time.Time) string {
	return sanitizeFileName(fmt.Sprintf("Relevé de leçons - %s - %s.xlsx", studentName, at.Format("2006-01-02")))
}
