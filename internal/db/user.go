package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/models"
)

const userColumns = `id, role, name, email, phone, telegram_chat_id, stripe_customer_id, created_at`

type Users struct {
	db *sqlx.DB
}

func NewUsers(database *sqlx.DB) *Users { return &Users{db: database} }

func (r *Users) Create(ctx context.Context, u models.User) (int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO users (role, name, email, phone, telegram_chat_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		string(u.Role), u.Name, u.Email, u.Phone, u.TelegramChatID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func (r *Users) Get(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var u models.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetMany — пользователи по списку id (порядок не гарантирован).
func (r *Users) GetMany(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var rows []models.User
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	out := make(map[int64]models.User, len(rows))
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}

func (r *Users) GetByStripeCustomer(ctx context.Context, customerID string) (*models.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var u models.User
	if err := r.db.GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerID); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Users) SetStripeCustomer(ctx context.Context, userID int64, customerID string) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET stripe_customer_id = $1 WHERE id = $2`, customerID, userID)
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
