// Package outbox retries generation-record persistence that failed after a
// credit debit already happened. The synchronous workflow never rolls a
// debit back, so a lost insert would leave the user charged with no
// retrievable record; enqueuing the full record as a background job closes
// that window.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/riverqueue/river"

	"github.com/renderyard/backend/internal/models"
)

type SaveGenerationArgs struct {
	Generation models.Generation `json:"generation"`
}

func (SaveGenerationArgs) Kind() string { return "save_generation" }

// GenerationStore is the insert contract the worker needs.
type GenerationStore interface {
	Create(ctx context.Context, g *models.Generation) error
}

type SaveGenerationWorker struct {
	river.WorkerDefaults[SaveGenerationArgs]
	store GenerationStore
	log   *slog.Logger
}

func NewSaveGenerationWorker(store GenerationStore, log *slog.Logger) *SaveGenerationWorker {
	if log == nil {
		log = slog.Default()
	}
	return &SaveGenerationWorker{store: store, log: log}
}

func (w *SaveGenerationWorker) Work(ctx context.Context, job *river.Job[SaveGenerationArgs]) error {
	g := job.Args.Generation
	if err := w.store.Create(ctx, &g); err != nil {
		// A unique violation means an earlier attempt (or the original
		// insert) actually landed; the record exists, so the job is done.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("save generation %s: %w", g.ID, err)
	}
	w.log.Info("recovered generation record", "generation_id", g.ID, "user_id", g.UserID)
	return nil
}
