package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/models"
)

const evaluationColumns = `reservation_id, professor_id, course_mastery, fundamentals_mastery, focus, discipline, is_absent, comment, created_at, updated_at`

type Evaluations struct {
	db *sqlx.DB
}

func NewEvaluations(database *sqlx.DB) *Evaluations { return &Evaluations{db: database} }

// UpsertStudentEvaluations — пачка оценок одной транзакцией; повторная отправка
// по той же брони перезаписывает значения.
func (r *Evaluations) UpsertStudentEvaluations(ctx context.Context, evs []models.StudentEvaluation) ([]models.StudentEvaluation, error) {
	out := make([]models.StudentEvaluation, 0, len(evs))
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO student_evaluations
				(reservation_id, professor_id, course_mastery, fundamentals_mastery, focus, discipline, is_absent, comment)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (reservation_id) DO UPDATE SET
				professor_id         = EXCLUDED.professor_id,
				course_mastery       = EXCLUDED.course_mastery,
				fundamentals_mastery = EXCLUDED.fundamentals_mastery,
				focus                = EXCLUDED.focus,
				discipline           = EXCLUDED.discipline,
				is_absent            = EXCLUDED.is_absent,
				comment              = EXCLUDED.comment,
				updated_at           = now()
			RETURNING ` + evaluationColumns)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, ev := range evs {
			var saved models.StudentEvaluation
			if err := stmt.GetContext(ctx, &saved,
				ev.ReservationID, ev.ProfessorID, ev.CourseMastery, ev.FundamentalsMastery,
				ev.Focus, ev.Discipline, ev.IsAbsent, ev.Comment); err != nil {
				return fmt.Errorf("upsert evaluation %d: %w", ev.ReservationID, err)
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Evaluations) UpsertProfessorRating(ctx context.Context, pr models.ProfessorRating) (*models.ProfessorRating, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var saved models.ProfessorRating
	err := r.db.GetContext(ctx, &saved, `
		INSERT INTO professor_ratings (reservation_id, student_id, professor_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reservation_id) DO UPDATE SET
			rating     = EXCLUDED.rating,
			comment    = EXCLUDED.comment,
			updated_at = now()
		RETURNING reservation_id, student_id, professor_id, rating, comment, created_at, updated_at`,
		pr.ReservationID, pr.StudentID, pr.ProfessorID, pr.Rating, pr.Comment)
	if err != nil {
		return nil, fmt.Errorf("upsert professor rating: %w", err)
	}
	return &saved, nil
}

// ProfessorScore — средняя оценка преподавателя. avg == nil, если оценок нет.
func (r *Evaluations) ProfessorScore(ctx context.Context, professorID int64) (avg *float64, count int, err error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	err = r.db.QueryRowxContext(ctx, `
		SELECT AVG(rating)::float8, COUNT(*)
		FROM professor_ratings
		WHERE professor_id = $1`, professorID).Scan(&avg, &count)
	if err != nil {
		return nil, 0, fmt.Errorf("professor score: %w", err)
	}
	return avg, count, nil
}
