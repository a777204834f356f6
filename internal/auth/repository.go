package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renderyard/backend/internal/models"
)

// WelcomeGranter applies a credit grant inside the registration
// transaction. *credits.Repository implements it.
type WelcomeGranter interface {
	GrantTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, description string) (int, error)
}

type Repository struct {
	pool   *pgxpool.Pool
	grants WelcomeGranter
}

func NewRepository(pool *pgxpool.Pool, grants WelcomeGranter) *Repository {
	return &Repository{pool: pool, grants: grants}
}

// CreateWithGrant inserts the user row and its welcome grant in one
// transaction. Either both land or neither does, so a failed grant never
// strands an account at zero credits behind a taken email.
func (r *Repository) CreateWithGrant(ctx context.Context, email, passwordHash, displayName string, welcomeCredits int, description string) (*models.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	u := &models.User{ID: uuid.New(), Email: email, DisplayName: displayName}
	err = tx.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, credit_balance)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING created_at, updated_at
	`, u.ID, email, passwordHash, displayName).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if welcomeCredits > 0 {
		balance, err := r.grants.GrantTx(ctx, tx, u.ID, welcomeCredits, description)
		if err != nil {
			return nil, err
		}
		u.CreditBalance = balance
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByEmail returns the user and its password hash, or (nil, "", nil) when
// no such user exists.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, string, error) {
	var u models.User
	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, credit_balance, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.DisplayName, &hash, &u.CreditBalance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return &u, hash, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, credit_balance, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreditBalance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
