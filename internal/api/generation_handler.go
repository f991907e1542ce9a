package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/go-chi/chi/v5"

	"github.com/vidsmith/vidsmith/internal/api/shared"
	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/generation"
	"github.com/vidsmith/vidsmith/internal/store"
)

// CreateGenerationRequest represents the request body for submitting a
// new video generation.
type CreateGenerationRequest struct {
	ChatID    string `json:"chat_id"    validate:"required,uuid"`
	MessageID string `json:"message_id" validate:"required,uuid"`
	Prompt    string `json:"prompt"`

	Models []ModelSelectionDTO `json:"models" validate:"required,min=1,dive"`

	FirstFrameURLs []string `json:"first_frame_urls,omitempty"`
	LastFrameURL   string   `json:"last_frame_url,omitempty"`

	StorageMode    string `json:"storage_mode,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	EnhanceSwitch  bool   `json:"enhance_switch,omitempty"`
	EnhancePrompt  bool   `json:"enhance_prompt,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`

	ModelParams map[string]map[string]any `json:"model_params,omitempty"`
}

// ModelSelectionDTO pairs a model ID with the requested video count.
type ModelSelectionDTO struct {
	ID    string `json:"id"    validate:"required"`
	Count int    `json:"count" validate:"required,min=1"`
}

// GenerationResponse is the initial snapshot returned on submission: one
// placeholder unit per requested video, all still queued.
type GenerationResponse struct {
	ChatID     string       `json:"chat_id"`
	MessageID  string       `json:"message_id"`
	Total      int          `json:"total"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Generating int          `json:"generating"`
	Units      []JobUnitDTO `json:"units"`
}

// JobUnitDTO is the wire form of a single job unit. ID is empty in the
// initial submission snapshot: authoritative job IDs are assigned by
// the orchestrator and surface through the ledger endpoints.
type JobUnitDTO struct {
	ID               string  `json:"id,omitempty"`
	ModelID          string  `json:"model_id"`
	ModelDisplayName string  `json:"model_display_name"`
	Index            int     `json:"index"`
	Status           string  `json:"status"`
	Progress         int     `json:"progress"`
	VideoURL         string  `json:"video_url,omitempty"`
	CoverURL         string  `json:"cover_url,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds,omitempty"`
	ErrorReason      string  `json:"error_reason,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// GenerationHandler handles generation-related HTTP requests.
type GenerationHandler struct {
	orchestrator *generation.Orchestrator
	reconciler   *generation.Reconciler
	ledger       store.LedgerStore
	logger       *slog.Logger
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(
	orchestrator *generation.Orchestrator,
	reconciler *generation.Reconciler,
	ledger store.LedgerStore,
	logger *slog.Logger,
) *GenerationHandler {
	return &GenerationHandler{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		ledger:       ledger,
		logger:       logger.With("component", "generation_handler"),
	}
}

// CreateGeneration handles POST /api/generations requests. The submission
// is accepted immediately; the fan-out runs in the background and the
// response carries the initial all-queued snapshot.
func (h *GenerationHandler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req CreateGenerationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	genReq, err := req.toDomain()
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if err := genReq.Validate(); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	// Run the fan-out detached from the request lifecycle. Progress is
	// observable through the ledger; the HTTP response only acknowledges
	// acceptance with the initial placeholder snapshot.
	go func() {
		ctx := context.Background()
		if _, err := h.orchestrator.HandleSendMessage(ctx, genReq, generation.Callbacks{}); err != nil {
			h.logger.Error("generation submission failed",
				"chat_id", genReq.ChatID,
				"message_id", genReq.MessageID,
				"error", err)
		}
	}()

	shared.RespondWithJSON(w, r, http.StatusAccepted, initialResponse(genReq))
}

// ReconcileChat handles POST /api/chats/{chatID}/reconcile requests.
// Called when a chat becomes active again after a restart: every
// unsettled job for the chat is resumed or, past the grace window,
// declared lost. Reconciliation runs in the background; the response
// only reports how many jobs were found unsettled.
func (h *GenerationHandler) ReconcileChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	session, err := h.reconciler.LoadSession(r.Context(), chatID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to load unsettled jobs", err)
		return
	}

	unsettled := 0
	for _, msg := range session.Messages {
		unsettled += len(msg.Result.GeneratingUnits())
	}
	if unsettled > 0 {
		go func() {
			if err := h.reconciler.Reconcile(context.Background(), session, generation.Callbacks{}); err != nil {
				h.logger.Error("reconciliation failed", "chat_id", chatID, "error", err)
			}
		}()
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, map[string]any{
		"chat_id":   chatID.String(),
		"unsettled": unsettled,
	})
}

// LedgerRecordDTO is the wire form of a persisted job record.
type LedgerRecordDTO struct {
	JobID          string `json:"job_id"`
	ProviderTaskID string `json:"provider_task_id,omitempty"`
	ModelName      string `json:"model_name"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	VideoURL       string `json:"video_url,omitempty"`
	CoverURL       string `json:"cover_url,omitempty"`
}

// ListGenerating handles GET /api/generations/{chatID} requests,
// returning every job for the chat that has not yet settled.
func (h *GenerationHandler) ListGenerating(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	records, err := h.ledger.ListGenerating(r.Context(), chatID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to list generating jobs", err)
		return
	}

	dtos := make([]LedgerRecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, LedgerRecordDTO{
			JobID:          rec.JobID.String(),
			ProviderTaskID: rec.ProviderTaskID,
			ModelName:      rec.ModelName,
			Status:         string(rec.Status),
			Progress:       rec.Progress,
			VideoURL:       rec.VideoURL,
			CoverURL:       rec.CoverURL,
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, dtos)
}

// toDomain converts the wire request to the domain form.
func (r *CreateGenerationRequest) toDomain() (*domain.GenerationRequest, error) {
	chatID, err := uuid.Parse(r.ChatID)
	if err != nil {
		return nil, err
	}
	messageID, err := uuid.Parse(r.MessageID)
	if err != nil {
		return nil, err
	}

	models := make([]domain.ModelSelection, 0, len(r.Models))
	for _, sel := range r.Models {
		models = append(models, domain.ModelSelection{ModelID: sel.ID, Count: sel.Count})
	}

	firstFrames := make([]domain.ImageRef, 0, len(r.FirstFrameURLs))
	for _, url := range r.FirstFrameURLs {
		firstFrames = append(firstFrames, domain.ImageRef{URL: url})
	}
	var lastFrame *domain.ImageRef
	if r.LastFrameURL != "" {
		lastFrame = &domain.ImageRef{URL: r.LastFrameURL}
	}

	return &domain.GenerationRequest{
		ChatID:           chatID,
		MessageID:        messageID,
		Prompt:           r.Prompt,
		Models:           models,
		FirstFrameImages: firstFrames,
		LastFrameImage:   lastFrame,
		Output: domain.OutputConfig{
			StorageMode:    r.StorageMode,
			Resolution:     r.Resolution,
			AspectRatio:    r.AspectRatio,
			EnhanceSwitch:  r.EnhanceSwitch,
			EnhancePrompt:  r.EnhancePrompt,
			NegativePrompt: r.NegativePrompt,
		},
		ModelParams: r.ModelParams,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// initialResponse builds the all-queued snapshot for a just-accepted
// request. Placeholder units carry no IDs: a fabricated ID would never
// match the orchestrator's units, so none is offered for correlation.
func initialResponse(req *domain.GenerationRequest) GenerationResponse {
	resp := GenerationResponse{
		ChatID:     req.ChatID.String(),
		MessageID:  req.MessageID.String(),
		Total:      req.TotalCount(),
		Generating: req.TotalCount(),
	}
	for _, sel := range req.Models {
		for i := 0; i < sel.Count; i++ {
			resp.Units = append(resp.Units, JobUnitDTO{
				ModelID:          sel.ModelID,
				ModelDisplayName: sel.ModelID,
				Index:            i,
				Status:           string(domain.JobStatusQueued),
			})
		}
	}
	return resp
}
