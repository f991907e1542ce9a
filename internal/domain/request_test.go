package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validRequest() *GenerationRequest {
	return &GenerationRequest{
		ChatID:    uuid.New(),
		MessageID: uuid.New(),
		Prompt:    "a red fox running through snow",
		Models: []ModelSelection{
			{ModelID: "model-a", Count: 2},
			{ModelID: "model-b", Count: 1},
		},
	}
}

func TestGenerationRequestValidate(t *testing.T) {
	t.Parallel()

	t.Run("accepts a well-formed request", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validRequest().Validate())
	})

	t.Run("rejects a nil chat id", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.ChatID = uuid.Nil
		assert.ErrorIs(t, req.Validate(), ErrEmptyChatID)
	})

	t.Run("rejects a nil message id", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.MessageID = uuid.Nil
		assert.ErrorIs(t, req.Validate(), ErrEmptyMessageID)
	})

	t.Run("rejects an empty model list", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Models = nil
		assert.ErrorIs(t, req.Validate(), ErrNoModelsSelected)
	})

	t.Run("rejects a non-positive count", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Models[1].Count = 0
		assert.ErrorIs(t, req.Validate(), ErrInvalidModelCount)
	})

	t.Run("rejects a request with neither prompt nor images", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Prompt = ""
		assert.ErrorIs(t, req.Validate(), ErrEmptyRequestInput)
	})

	t.Run("accepts an image-only request", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Prompt = ""
		req.FirstFrameImages = []ImageRef{{URL: "https://cdn.example.com/a.png"}}
		assert.NoError(t, req.Validate())
	})
}

func TestTotalCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, validRequest().TotalCount())
}

func TestImageRefUploaded(t *testing.T) {
	t.Parallel()

	assert.True(t, ImageRef{URL: "https://cdn.example.com/a.png"}.Uploaded())
	assert.False(t, ImageRef{LocalPath: "/tmp/a.png"}.Uploaded())
}
