package models

import (
	"time"

	"github.com/google/uuid"
)

type TokenEventType string

const (
	TokenGrant   TokenEventType = "GRANT"
	TokenConsume TokenEventType = "CONSUME"
	TokenRefund  TokenEventType = "REFUND"
	TokenExpire  TokenEventType = "EXPIRE"
)

// TokenEvent — неизменяемая запись журнала уроков. Баланс = сумма Delta.
type TokenEvent struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	StudentID     int64          `db:"student_id" json:"studentId"`
	ReservationID *int64         `db:"reservation_id" json:"reservationId"`
	Type          TokenEventType `db:"type" json:"type"`
	Delta         int            `db:"delta" json:"delta"`
	ExternalRef   *string        `db:"external_ref" json:"externalRef,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
}
