package generation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/renderyard/backend/internal/credits"
	"github.com/renderyard/backend/internal/middleware"
	"github.com/renderyard/backend/internal/models"
)

// Request/response field names match the web client's camelCase JSON.

type generateRequest struct {
	Type          string   `json:"type"`
	Prompt        string   `json:"prompt"`
	Style         string   `json:"style,omitempty"`
	ImageURLs     []string `json:"imageUrls,omitempty"`
	AspectRatio   string   `json:"aspectRatio,omitempty"`
	EnhancePrompt bool     `json:"enhancePrompt,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type generateMetadata struct {
	Type        string    `json:"type"`
	Prompt      string    `json:"prompt"`
	Style       string    `json:"style,omitempty"`
	AspectRatio string    `json:"aspectRatio"`
	CreditsUsed int       `json:"creditsUsed"`
	CreatedAt   time.Time `json:"createdAt"`
}

type generateResponse struct {
	Success  bool             `json:"success"`
	Images   []imageRef       `json:"images"`
	Metadata generateMetadata `json:"metadata"`
}

type sketchGenerateRequest struct {
	Prompt      string `json:"prompt"`
	SourceImage string `json:"sourceImage"`
	Style       string `json:"style"`
}

type sketchGenerateResponse struct {
	Image       string `json:"image"`
	CreditsUsed int    `json:"creditsUsed"`
}

type Handler struct {
	svc        Service
	creditCost int
	log        *slog.Logger
}

func NewHandler(svc Service, creditCost int, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, creditCost: creditCost, log: log}
}

// Generate handles POST /api/v1/generate. The session is optional:
// text-to-image requests are served anonymously, image-to-image requests
// require a signed-in user and credits.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Type == "" || req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields: type and prompt"})
		return
	}
	if !models.ValidToolType(req.Type) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid generation type: " + req.Type})
		return
	}

	res, err := h.svc.Generate(r.Context(), user, Request{
		Type:          req.Type,
		Prompt:        req.Prompt,
		Style:         req.Style,
		ImageURLs:     req.ImageURLs,
		AspectRatio:   req.AspectRatio,
		EnhancePrompt: req.EnhancePrompt,
	})
	if err != nil {
		h.writeGenerateError(w, err, "Failed to generate image")
		return
	}

	images := make([]imageRef, 0, len(res.Images))
	for _, u := range res.Images {
		images = append(images, imageRef{URL: u})
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Success: true,
		Images:  images,
		Metadata: generateMetadata{
			Type:        req.Type,
			Prompt:      res.Prompt,
			Style:       req.Style,
			AspectRatio: res.AspectRatio,
			CreditsUsed: res.CreditsUsed,
			CreatedAt:   res.CreatedAt,
		},
	})
}

// GenerateLandscape handles POST /api/v1/generate/landscape, the
// sketch-to-rendering flow. Registered behind SessionAuth.
func (h *Handler) GenerateLandscape(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Please sign in to use this feature"})
		return
	}

	var req sketchGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Prompt == "" || req.SourceImage == "" || req.Style == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required parameters: prompt, sourceImage, or style"})
		return
	}

	res, err := h.svc.GenerateFromSketch(r.Context(), user, SketchRequest{
		Prompt:      req.Prompt,
		SourceImage: req.SourceImage,
		Style:       req.Style,
	})
	if err != nil {
		h.writeGenerateError(w, err, "Failed to generate landscape rendering. Please try again later.")
		return
	}
	writeJSON(w, http.StatusOK, sketchGenerateResponse{Image: res.Image, CreditsUsed: res.CreditsUsed})
}

// ListGenerations handles GET /api/v1/generations.
func (h *Handler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized. Please log in."})
		return
	}
	list, err := h.svc.ListGenerations(r.Context(), user.ID)
	if err != nil {
		h.log.Error("list generations failed", "user_id", user.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if list == nil {
		list = []*models.Generation{}
	}
	writeJSON(w, http.StatusOK, list)
}

// DeleteGeneration handles DELETE /api/v1/generations/{id}.
func (h *Handler) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized. Please log in."})
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid generation id"})
		return
	}
	if err := h.svc.DeleteGeneration(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "generation not found"})
			return
		}
		h.log.Error("delete generation failed", "user_id", user.ID, "generation_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeGenerateError maps workflow errors onto the response contract.
// Provider and storage detail never reaches the client; a generic message is
// returned and the cause is logged server-side.
func (h *Handler) writeGenerateError(w http.ResponseWriter, err error, genericMsg string) {
	switch {
	case errors.Is(err, ErrInvalidType):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized. Please log in."})
	case errors.Is(err, credits.ErrInsufficientCredits):
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":    "Insufficient credits",
			"required": h.creditCost,
		})
	default:
		h.log.Error("generation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": genericMsg})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
