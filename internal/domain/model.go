package domain

import "fmt"

// ModelClass groups models by how long their tasks typically run; the
// provider client selects a poll policy by class.
type ModelClass string

const (
	// ModelClassStandard covers short-clip models (seconds of output).
	ModelClassStandard ModelClass = "standard"

	// ModelClassLong covers models whose tasks routinely run for many
	// minutes and need a slower, longer poll loop.
	ModelClassLong ModelClass = "long"
)

// ModelSpec describes one generation model's identity and input
// capabilities. The catalog is configuration, loaded at construction.
type ModelSpec struct {
	ID                string     `json:"id"                  mapstructure:"id"`
	DisplayName       string     `json:"display_name"        mapstructure:"display_name"`
	Version           string     `json:"version"             mapstructure:"version"`
	Class             ModelClass `json:"class"               mapstructure:"class"`
	AcceptsImageInput bool       `json:"accepts_image_input" mapstructure:"accepts_image_input"`
	MaxInputImages    int        `json:"max_input_images"    mapstructure:"max_input_images"`
	SupportsLastFrame bool       `json:"supports_last_frame" mapstructure:"supports_last_frame"`
	SceneType         string     `json:"scene_type,omitempty" mapstructure:"scene_type"`
}

// CheckCompatibility decides whether this model can serve the given
// input shape. A non-nil result is a synchronous, local rejection: the
// caller fails the model's units without any provider call.
func (m ModelSpec) CheckCompatibility(imageCount int, hasLastFrame bool) *JobError {
	if imageCount > 0 && !m.AcceptsImageInput {
		return NewJobError(FailureOnlyT2V,
			fmt.Sprintf("model %s accepts text input only but %d reference image(s) were provided", m.ID, imageCount))
	}
	if m.AcceptsImageInput && imageCount > m.MaxInputImages {
		return NewJobError(FailureTooManyImages,
			fmt.Sprintf("model %s accepts at most %d reference image(s), got %d", m.ID, m.MaxInputImages, imageCount))
	}
	if hasLastFrame && !m.SupportsLastFrame {
		return NewJobError(FailureLastFrameUnsupported,
			fmt.Sprintf("model %s does not support a last-frame image", m.ID))
	}
	return nil
}

// ModelCatalog resolves model IDs to their specs.
type ModelCatalog map[string]ModelSpec

// Lookup returns the spec for the given model ID.
func (c ModelCatalog) Lookup(modelID string) (ModelSpec, error) {
	spec, ok := c[modelID]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return spec, nil
}
