package models

import "time"

// StudentEvaluation — оценка ученика преподавателем после урока, одна на бронь.
type StudentEvaluation struct {
	ReservationID       int64     `db:"reservation_id" json:"reservationId"`
	ProfessorID         int64     `db:"professor_id" json:"professorId"`
	CourseMastery       int       `db:"course_mastery" json:"courseMasteryRating"`
	FundamentalsMastery int       `db:"fundamentals_mastery" json:"fundamentalsMasteryRating"`
	Focus               int       `db:"focus" json:"focusRating"`
	Discipline          int       `db:"discipline" json:"disciplineRating"`
	IsAbsent            bool      `db:"is_absent" json:"isStudentAbsent"`
	Comment             *string   `db:"comment" json:"comment"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time `db:"updated_at" json:"updatedAt"`
}

// ProfessorRating — оценка преподавателя учеником, одна на бронь.
type ProfessorRating struct {
	ReservationID int64     `db:"reservation_id" json:"reservationId"`
	StudentID     int64     `db:"student_id" json:"studentId"`
	ProfessorID   int64     `db:"professor_id" json:"professorId"`
	Rating        int       `db:"rating" json:"rating"`
	Comment       *string   `db:"comment" json:"comment"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}
