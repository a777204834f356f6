package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/renderyard/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory UserStore mock. CreateWithGrant is all-or-nothing, like the
// Postgres repository: on error no user and no grant exist.
// ---------------------------------------------------------------------------

type grantRecord struct {
	userID      uuid.UUID
	amount      int
	description string
}

type memUserStore struct {
	users     map[string]*models.User
	hashes    map[string]string
	grants    []grantRecord
	createErr error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:  make(map[string]*models.User),
		hashes: make(map[string]string),
	}
}

func (m *memUserStore) CreateWithGrant(_ context.Context, email, passwordHash, displayName string, welcomeCredits int, description string) (*models.User, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, exists := m.users[email]; exists {
		return nil, &pgconn.PgError{Code: "23505"}
	}
	u := &models.User{ID: uuid.New(), Email: email, DisplayName: displayName}
	if welcomeCredits > 0 {
		u.CreditBalance = welcomeCredits
		m.grants = append(m.grants, grantRecord{userID: u.ID, amount: welcomeCredits, description: description})
	}
	m.users[email] = u
	m.hashes[email] = passwordHash
	return u, nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*models.User, string, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, "", nil
	}
	return u, m.hashes[email], nil
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister(t *testing.T) {
	store := newMemUserStore()
	svc := NewService(store, "test-secret", 30)
	ctx := context.Background()

	u, err := svc.Register(ctx, "dana@example.com", "hunter22", "Dana")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "dana@example.com" || u.DisplayName != "Dana" {
		t.Errorf("user: got %+v", u)
	}
	if u.CreditBalance != 30 {
		t.Errorf("balance: got %d, want 30", u.CreditBalance)
	}

	// exactly one welcome grant of the configured amount
	if len(store.grants) != 1 {
		t.Fatalf("grants: got %d, want 1", len(store.grants))
	}
	g := store.grants[0]
	if g.userID != u.ID || g.amount != 30 || g.description != "Welcome credits" {
		t.Errorf("grant: got %+v", g)
	}

	// password is stored as a bcrypt hash, never plaintext
	hash := store.hashes["dana@example.com"]
	if hash == "hunter22" {
		t.Fatal("password stored as plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter22")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	store := newMemUserStore()
	svc := NewService(store, "test-secret", 30)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "dana@example.com", "hunter22", "Dana"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(ctx, "dana@example.com", "other-pass", "Imposter")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got: %v", err)
	}
	// only the original registration granted
	if len(store.grants) != 1 {
		t.Errorf("grants: got %d, want 1", len(store.grants))
	}
}

// A failed registration leaves nothing behind, so retrying the same email
// succeeds with the full welcome grant.
func TestRegister_FailureLeavesNoUser(t *testing.T) {
	store := newMemUserStore()
	svc := NewService(store, "test-secret", 30)
	ctx := context.Background()

	store.createErr = errors.New("connection refused")
	if _, err := svc.Register(ctx, "dana@example.com", "hunter22", "Dana"); err == nil {
		t.Fatal("expected an error from the failed insert")
	}
	if len(store.users) != 0 || len(store.grants) != 0 {
		t.Fatal("failed registration must not leave partial state")
	}

	store.createErr = nil
	u, err := svc.Register(ctx, "dana@example.com", "hunter22", "Dana")
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if u.CreditBalance != 30 || len(store.grants) != 1 {
		t.Errorf("retry must receive the full grant: balance %d, grants %d", u.CreditBalance, len(store.grants))
	}
}

func TestRegister_ZeroWelcomeCredits(t *testing.T) {
	store := newMemUserStore()
	svc := NewService(store, "test-secret", 0)

	u, err := svc.Register(context.Background(), "dana@example.com", "hunter22", "Dana")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.CreditBalance != 0 || len(store.grants) != 0 {
		t.Errorf("no grant expected: balance %d, grants %d", u.CreditBalance, len(store.grants))
	}
}

// ---------------------------------------------------------------------------
// Login / ValidateToken
// ---------------------------------------------------------------------------

func TestLogin(t *testing.T) {
	store := newMemUserStore()
	svc := NewService(store, "test-secret", 30)
	ctx := context.Background()

	u, err := svc.Register(ctx, "dana@example.com", "hunter22", "Dana")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, err := svc.Login(ctx, "dana@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	id, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != u.ID {
		t.Errorf("token subject: got %v, want %v", id, u.ID)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	store := newMemUserStore()
	svc := NewService(store, "test-secret", 30)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "dana@example.com", "hunter22", "Dana"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Login(ctx, "dana@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got: %v", err)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc := NewService(newMemUserStore(), "test-secret", 30)
	_, err := svc.Login(context.Background(), "nobody@example.com", "hunter22")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got: %v", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := NewService(newMemUserStore(), "test-secret", 30)
	if _, err := svc.ValidateToken(context.Background(), "not.a.jwt"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	store := newMemUserStore()
	issuer := NewService(store, "secret-a", 30)
	verifier := NewService(store, "secret-b", 30)
	ctx := context.Background()

	if _, err := issuer.Register(ctx, "dana@example.com", "hunter22", "Dana"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, err := issuer.Login(ctx, "dana@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := verifier.ValidateToken(ctx, token); err == nil {
		t.Fatal("expected a signature error for a token signed with another secret")
	}
}
