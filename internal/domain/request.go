package domain

import (
	"time"

	"github.com/google/uuid"
)

// ModelSelection pairs a model with the number of videos requested from it.
type ModelSelection struct {
	ModelID string `json:"model_id"`
	Count   int    `json:"count"`
}

// OutputConfig describes the requested output shape for every job in a
// submission. StorageMode selects where the provider writes results.
type OutputConfig struct {
	StorageMode    string `json:"storage_mode,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	EnhanceSwitch  bool   `json:"enhance_switch,omitempty"`
	EnhancePrompt  bool   `json:"enhance_prompt,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// ImageRef is a reference image attached to a request. LocalPath is set
// for images that still live on the submitting client; URL is filled by
// the upload phase before any provider call. Local paths are never sent
// to the provider.
type ImageRef struct {
	LocalPath string `json:"local_path,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Uploaded reports whether the reference already points at a durable URL.
func (r ImageRef) Uploaded() bool {
	return r.URL != ""
}

// GenerationRequest is one user submission. It is immutable once
// submitted; the orchestrator fans it out into independent JobUnits.
type GenerationRequest struct {
	ChatID    uuid.UUID `json:"chat_id"`
	MessageID uuid.UUID `json:"message_id"`
	Prompt    string    `json:"prompt"`

	// Models is the ordered list of (model, requested count) pairs.
	Models []ModelSelection `json:"models"`

	// FirstFrameImages seed the first frame; LastFrameImage, when set,
	// pins the final frame for models that support it.
	FirstFrameImages []ImageRef `json:"first_frame_images,omitempty"`
	LastFrameImage   *ImageRef  `json:"last_frame_image,omitempty"`

	Output OutputConfig `json:"output"`

	// ModelParams holds optional model-specific parameter overrides,
	// keyed by model ID, passed through to the provider untouched.
	ModelParams map[string]map[string]any `json:"model_params,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the request before any remote call is made.
func (r *GenerationRequest) Validate() error {
	if r.ChatID == uuid.Nil {
		return ErrEmptyChatID
	}
	if r.MessageID == uuid.Nil {
		return ErrEmptyMessageID
	}
	if len(r.Models) == 0 {
		return ErrNoModelsSelected
	}
	for _, sel := range r.Models {
		if sel.Count <= 0 {
			return ErrInvalidModelCount
		}
	}
	if r.Prompt == "" && len(r.FirstFrameImages) == 0 {
		return ErrEmptyRequestInput
	}
	return nil
}

// TotalCount returns the number of JobUnits this request fans out into.
func (r *GenerationRequest) TotalCount() int {
	total := 0
	for _, sel := range r.Models {
		total += sel.Count
	}
	return total
}
