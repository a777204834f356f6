package models

import (
	"time"

	"github.com/google/uuid"
)

// Generation tool types. Each maps to a fixed credit cost for paid requests.
const (
	ToolLandscape = "landscape"
	ToolGarden    = "garden"
	ToolSketch    = "sketch"
	ToolExterior  = "exterior"
	ToolInterior  = "interior"
)

// ValidToolType reports whether t is a known generation type.
func ValidToolType(t string) bool {
	switch t {
	case ToolLandscape, ToolGarden, ToolSketch, ToolExterior, ToolInterior:
		return true
	}
	return false
}

// Generation is one persisted result of a successful image generation.
// Rows are append-only: created exactly once after the provider completes
// and the credits (if any) have been debited, then never updated.
type Generation struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"userId"`
	ImageURL       string    `json:"imageUrl"`
	Prompt         string    `json:"prompt"`
	ToolType       string    `json:"toolType"`
	Style          string    `json:"style"`
	AspectRatio    string    `json:"aspectRatio"`
	SourceImageURL *string   `json:"sourceImageUrl,omitempty"`
	CreditsUsed    int       `json:"creditsUsed"`
	CreatedAt      time.Time `json:"createdAt"`
}
