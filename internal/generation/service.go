package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/renderyard/backend/internal/credits"
	"github.com/renderyard/backend/internal/models"
	"github.com/renderyard/backend/internal/outbox"
	"github.com/renderyard/backend/internal/provider"
)

var (
	// ErrUnauthenticated is returned when a paid request carries no user.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidType is returned for an unknown generation type.
	ErrInvalidType = errors.New("invalid generation type")
	// ErrNotFound is returned when a generation does not exist or belongs
	// to someone else.
	ErrNotFound = errors.New("generation not found")
)

// ImageProvider is the task-based provider contract (Evolink).
type ImageProvider interface {
	SubmitGeneration(ctx context.Context, prompt, size string, imageURLs []string) (string, error)
	PollUntilDone(ctx context.Context, taskID string) ([]string, error)
}

// SketchProvider is the deadline-bounded image-to-image contract (Replicate).
type SketchProvider interface {
	GenerateFromSketch(ctx context.Context, prompt, negativePrompt, sourceImage string) (string, error)
}

// CreditService is the subset of the credit ledger the orchestrator uses.
type CreditService interface {
	HasEnoughCredits(ctx context.Context, userID uuid.UUID, required int) (bool, error)
	ConsumeCredits(ctx context.Context, userID uuid.UUID, amount int, description string) error
}

// RecordStore persists and serves generation history. *Repository implements it.
type RecordStore interface {
	Create(ctx context.Context, g *models.Generation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Generation, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// EnqueueSaveFunc schedules a background retry of a record insert that
// failed after the debit. Provided by main as a closure over river.Client.
type EnqueueSaveFunc func(ctx context.Context, args outbox.SaveGenerationArgs) error

// Request is one generation call. It lives for the duration of the request
// and is never persisted.
type Request struct {
	Type          string
	Prompt        string
	Style         string
	ImageURLs     []string
	AspectRatio   string
	EnhancePrompt bool
}

// Paid reports whether the request is image-to-image. Any supplied source
// image makes the generation paid and authentication mandatory; pure
// text-to-image is free and open to anonymous callers.
func (r Request) Paid() bool { return len(r.ImageURLs) > 0 }

// Result is returned to the handler on success.
type Result struct {
	Images      []string
	Prompt      string
	AspectRatio string
	CreditsUsed int
	CreatedAt   time.Time
}

// SketchRequest is one sketch-to-rendering call. Always paid.
type SketchRequest struct {
	Prompt      string
	SourceImage string
	Style       string
}

type SketchResult struct {
	Image       string
	CreditsUsed int
}

type Service interface {
	Generate(ctx context.Context, user *models.User, req Request) (*Result, error)
	GenerateFromSketch(ctx context.Context, user *models.User, req SketchRequest) (*SketchResult, error)
	ListGenerations(ctx context.Context, userID uuid.UUID) ([]*models.Generation, error)
	DeleteGeneration(ctx context.Context, userID, id uuid.UUID) error
}

type service struct {
	store       RecordStore
	credits     CreditService
	images      ImageProvider
	sketches    SketchProvider
	enqueueSave EnqueueSaveFunc
	cost        int
	log         *slog.Logger
}

func NewService(store RecordStore, creditSvc CreditService, images ImageProvider, sketches SketchProvider, enqueueSave EnqueueSaveFunc, cost int, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		store:       store,
		credits:     creditSvc,
		images:      images,
		sketches:    sketches,
		enqueueSave: enqueueSave,
		cost:        cost,
		log:         log,
	}
}

var _ Service = (*service)(nil)

// Generate runs the full workflow: validate, gate paid requests on auth and
// credits, submit, poll, debit, persist. Credits are only consumed after the
// provider delivers results; any provider failure aborts with the balance
// untouched and nothing persisted.
func (s *service) Generate(ctx context.Context, user *models.User, req Request) (*Result, error) {
	if !models.ValidToolType(req.Type) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, req.Type)
	}

	cost := 0
	if req.Paid() {
		if user == nil {
			return nil, ErrUnauthenticated
		}
		cost = s.cost
		// Fast-path check only; the atomic decrement below is the gate.
		ok, err := s.credits.HasEnoughCredits(ctx, user.ID, cost)
		if err != nil {
			return nil, fmt.Errorf("check credits: %w", err)
		}
		if !ok {
			return nil, credits.ErrInsufficientCredits
		}
	}

	finalPrompt := req.Prompt
	if req.EnhancePrompt {
		finalPrompt = EnhancePrompt(req.Prompt, req.Type, req.Style)
	}
	size := provider.MapAspectRatio(req.AspectRatio)

	taskID, err := s.images.SubmitGeneration(ctx, finalPrompt, size, req.ImageURLs)
	if err != nil {
		return nil, err
	}
	urls, err := s.images.PollUntilDone(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if cost > 0 {
		desc := debitDescription(req.Type)
		if err := s.credits.ConsumeCredits(ctx, user.ID, cost, desc); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Images:      urls,
		Prompt:      finalPrompt,
		AspectRatio: size,
		CreditsUsed: cost,
		CreatedAt:   time.Now().UTC(),
	}

	// History is kept for any signed-in caller, free generations included.
	if user != nil {
		s.persistRecord(ctx, &models.Generation{
			ID:             uuid.New(),
			UserID:         user.ID,
			ImageURL:       urls[0],
			Prompt:         finalPrompt,
			ToolType:       req.Type,
			Style:          req.Style,
			AspectRatio:    size,
			SourceImageURL: firstSourceURL(req.ImageURLs),
			CreditsUsed:    cost,
			CreatedAt:      res.CreatedAt,
		})
	}
	return res, nil
}

// GenerateFromSketch is the always-paid image-to-image flow against the
// hosted SDXL model. Same credit and persistence rules as Generate.
func (s *service) GenerateFromSketch(ctx context.Context, user *models.User, req SketchRequest) (*SketchResult, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	ok, err := s.credits.HasEnoughCredits(ctx, user.ID, s.cost)
	if err != nil {
		return nil, fmt.Errorf("check credits: %w", err)
	}
	if !ok {
		return nil, credits.ErrInsufficientCredits
	}

	prompt, negative := SketchStylePrompt(req.Style, req.Prompt)
	imageURL, err := s.sketches.GenerateFromSketch(ctx, prompt, negative, req.SourceImage)
	if err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("AI Landscape Design - %s style", req.Style)
	if err := s.credits.ConsumeCredits(ctx, user.ID, s.cost, desc); err != nil {
		return nil, err
	}

	s.persistRecord(ctx, &models.Generation{
		ID:          uuid.New(),
		UserID:      user.ID,
		ImageURL:    imageURL,
		Prompt:      prompt,
		ToolType:    models.ToolLandscape,
		Style:       req.Style,
		AspectRatio: provider.MapAspectRatio(""),
		CreditsUsed: s.cost,
		CreatedAt:   time.Now().UTC(),
	})
	return &SketchResult{Image: imageURL, CreditsUsed: s.cost}, nil
}

// persistRecord inserts the history row. A failure here is logged and handed
// to the outbox for retry; the debit is never reversed and the caller still
// receives the generated images.
func (s *service) persistRecord(ctx context.Context, g *models.Generation) {
	if err := s.store.Create(ctx, g); err != nil {
		s.log.Error("persist generation failed, scheduling retry",
			"generation_id", g.ID, "user_id", g.UserID, "error", err)
		if s.enqueueSave == nil {
			return
		}
		if qerr := s.enqueueSave(ctx, outbox.SaveGenerationArgs{Generation: *g}); qerr != nil {
			s.log.Error("enqueue generation save failed",
				"generation_id", g.ID, "user_id", g.UserID, "error", qerr)
		}
	}
}

func (s *service) ListGenerations(ctx context.Context, userID uuid.UUID) ([]*models.Generation, error) {
	return s.store.ListByUser(ctx, userID)
}

// DeleteGeneration removes a history row after verifying ownership. A row
// belonging to another user is reported as not found, not forbidden.
func (s *service) DeleteGeneration(ctx context.Context, userID, id uuid.UUID) error {
	g, err := s.store.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if g.UserID != userID {
		return ErrNotFound
	}
	return s.store.Delete(ctx, id)
}

func debitDescription(toolType string) string {
	return strings.ToUpper(toolType[:1]) + toolType[1:] + " image generation"
}

// firstSourceURL records the first forwardable source image with the
// generation, if any.
func firstSourceURL(urls []string) *string {
	for _, u := range urls {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return &u
		}
	}
	return nil
}
