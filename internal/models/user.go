package models

import "time"

type Role string

const (
	Student   Role = "student"
	Professor Role = "professor"
	Admin     Role = "admin"
)

type User struct {
	ID               int64     `db:"id" json:"id"`
	Role             Role      `db:"role" json:"role"`
	Name             string    `db:"name" json:"name"`
	Email            string    `db:"email" json:"email"`
	Phone            *string   `db:"phone" json:"phone,omitempty"`
	TelegramChatID   *int64    `db:"telegram_chat_id" json:"-"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}
