package credits

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renderyard/backend/internal/models"
)

var (
	errInsufficientCredits = errors.New("insufficient credits")
	errUnknownUser         = errors.New("unknown user")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Balance returns the user's current credit balance.
func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `
		SELECT credit_balance FROM users WHERE id = $1
	`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errUnknownUser
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Debit atomically decrements the user's balance by amount and records a
// debit ledger entry, both in one transaction. The conditional UPDATE is
// the source of truth: only a row with credit_balance >= amount is touched,
// so concurrent debits can never drive the balance negative.
func (r *Repository) Debit(ctx context.Context, userID uuid.UUID, amount int, description string) (newBalance int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE users SET credit_balance = credit_balance - $1, updated_at = now()
		WHERE id = $2 AND credit_balance >= $1
		RETURNING credit_balance
	`, amount, userID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the user does not exist or the balance was too low.
		var exists bool
		if checkErr := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); checkErr != nil {
			return 0, checkErr
		}
		if !exists {
			return 0, errUnknownUser
		}
		return 0, errInsufficientCredits
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO credit_ledger (id, user_id, entry_type, amount, balance_after, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), userID, models.CreditEntryDebit, amount, newBalance, description)
	if err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

// Grant atomically increments the user's balance and records a grant entry.
func (r *Repository) Grant(ctx context.Context, userID uuid.UUID, amount int, description string) (newBalance int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	newBalance, err = r.GrantTx(ctx, tx, userID, amount, description)
	if err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

// GrantTx applies the increment and the ledger insert inside the caller's
// transaction. Registration uses this so a user row can never commit
// without its welcome grant.
func (r *Repository) GrantTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, description string) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE users SET credit_balance = credit_balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING credit_balance
	`, amount, userID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errUnknownUser
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO credit_ledger (id, user_id, entry_type, amount, balance_after, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), userID, models.CreditEntryGrant, amount, newBalance, description)
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ListByUser returns the user's ledger entries, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.CreditLedger, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, entry_type, amount, balance_after, description, created_at
		FROM credit_ledger WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditLedger
	for rows.Next() {
		var c models.CreditLedger
		if err := rows.Scan(&c.ID, &c.UserID, &c.EntryType, &c.Amount, &c.BalanceAfter, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
