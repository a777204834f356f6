package credits

import (
	"context"

	"github.com/google/uuid"

	"github.com/renderyard/backend/internal/models"
)

// ErrInsufficientCredits is returned by ConsumeCredits when the balance is
// lower than the requested amount at the moment of the decrement.
var ErrInsufficientCredits = errInsufficientCredits

// ErrUnknownUser is returned when no balance record exists for the user.
var ErrUnknownUser = errUnknownUser

type Service interface {
	// HasEnoughCredits answers "does this user have at least required
	// credits" without mutating state. It is a fast-path pre-flight only;
	// ConsumeCredits re-checks atomically at the actual decrement.
	HasEnoughCredits(ctx context.Context, userID uuid.UUID, required int) (bool, error)
	// ConsumeCredits debits amount from the user's balance. Every debit
	// carries a human-readable description for statement display.
	ConsumeCredits(ctx context.Context, userID uuid.UUID, amount int, description string) error
	// GrantCredits adds amount to the user's balance (signup bonus,
	// subscription top-up).
	GrantCredits(ctx context.Context, userID uuid.UUID, amount int, description string) error
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	ListLedger(ctx context.Context, userID uuid.UUID) ([]*models.CreditLedger, error)
}

// Store is the persistence contract the service needs. *Repository
// implements it; tests substitute an in-memory version.
type Store interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Debit(ctx context.Context, userID uuid.UUID, amount int, description string) (int, error)
	Grant(ctx context.Context, userID uuid.UUID, amount int, description string) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.CreditLedger, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) HasEnoughCredits(ctx context.Context, userID uuid.UUID, required int) (bool, error) {
	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= required, nil
}

func (s *service) ConsumeCredits(ctx context.Context, userID uuid.UUID, amount int, description string) error {
	_, err := s.store.Debit(ctx, userID, amount, description)
	return err
}

func (s *service) GrantCredits(ctx context.Context, userID uuid.UUID, amount int, description string) error {
	_, err := s.store.Grant(ctx, userID, amount, description)
	return err
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.Balance(ctx, userID)
}

func (s *service) ListLedger(ctx context.Context, userID uuid.UUID) ([]*models.CreditLedger, error) {
	return s.store.ListByUser(ctx, userID)
}
