package credits

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/renderyard/backend/internal/middleware"
	"github.com/renderyard/backend/internal/models"
)

// Handler serves the account credit endpoints.
type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type balanceResponse struct {
	CreditBalance int `json:"credit_balance"`
}

// Balance handles GET /api/v1/credits/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	balance, err := h.svc.Balance(r.Context(), user.ID)
	if err != nil {
		h.log.Error("fetch balance failed", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{CreditBalance: balance})
}

// Ledger handles GET /api/v1/credits/ledger.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	entries, err := h.svc.ListLedger(r.Context(), user.ID)
	if err != nil {
		h.log.Error("list ledger failed", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.CreditLedger{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
