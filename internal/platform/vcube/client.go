package vcube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/provider"
)

// API actions supported by the client.
const (
	actionCreateTask   = "CreateAigcVideoTask"
	actionDescribeTask = "DescribeTaskDetail"
)

// Config holds everything needed to talk to the provider. One configured
// client is constructed at process start and reused across all calls.
type Config struct {
	SecretID  string        `mapstructure:"secret_id"  validate:"required"`
	SecretKey string        `mapstructure:"secret_key" validate:"required"`
	Host      string        `mapstructure:"host"       validate:"required,hostname"`
	Region    string        `mapstructure:"region"`
	Version   string        `mapstructure:"version"    validate:"required"`
	SubAppID  string        `mapstructure:"sub_app_id"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// MaxCreateRetries bounds transport-level retries on CreateTask.
	// Provider-side rejections are never retried.
	MaxCreateRetries int           `mapstructure:"max_create_retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`

	// PollPolicies selects the poll loop bounds per model class.
	PollPolicies map[domain.ModelClass]provider.PollPolicy `mapstructure:"poll_policies"`

	// Endpoint overrides the target URL; when empty, https://<Host> is
	// used. Tests point this at an httptest server.
	Endpoint string `mapstructure:"endpoint"`
}

// DefaultPollPolicies returns the poll bounds used when config does not
// override them.
func DefaultPollPolicies() map[domain.ModelClass]provider.PollPolicy {
	return map[domain.ModelClass]provider.PollPolicy{
		domain.ModelClassStandard: {Interval: 5 * time.Second, MaxAttempts: 120, MaxElapsed: 10 * time.Minute},
		domain.ModelClassLong:     {Interval: 15 * time.Second, MaxAttempts: 240, MaxElapsed: 60 * time.Minute},
	}
}

// Client calls the remote video generation API. It implements
// provider.Client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	rng        *rand.Rand
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: secret id and secret key are required", provider.ErrInvalidConfig)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", provider.ErrInvalidConfig)
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("%w: API version is required", provider.ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxCreateRetries < 0 {
		cfg.MaxCreateRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if len(cfg.PollPolicies) == 0 {
		cfg.PollPolicies = DefaultPollPolicies()
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "vcube_client"),
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Wire types. Field names match the provider's JSON shapes exactly.

type wireFileInfo struct {
	Type string `json:"Type"`
	URL  string `json:"Url"`
}

type wireOutputConfig struct {
	StorageMode   string `json:"StorageMode,omitempty"`
	Resolution    string `json:"Resolution,omitempty"`
	EnhanceSwitch bool   `json:"EnhanceSwitch,omitempty"`
	AspectRatio   string `json:"AspectRatio,omitempty"`
}

type wireError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type createTaskResponse struct {
	Response struct {
		TaskId    string     `json:"TaskId"`
		RequestId string     `json:"RequestId"`
		Error     *wireError `json:"Error"`
	} `json:"Response"`
}

type wireMetaData struct {
	Duration float64 `json:"Duration"`
	Width    int     `json:"Width"`
	Height   int     `json:"Height"`
	CoverUrl string  `json:"CoverUrl"`
}

type wireOutputFile struct {
	FileUrl  string        `json:"FileUrl"`
	MetaData *wireMetaData `json:"MetaData"`
}

type wireTaskDetail struct {
	Status   string `json:"Status"`
	Progress int    `json:"Progress"`
	ErrCode  int    `json:"ErrCode"`
	ErrMsg   string `json:"ErrMsg"`
	Output   *struct {
		FileInfos []wireOutputFile `json:"FileInfos"`
	} `json:"Output"`
}

type describeTaskResponse struct {
	Response struct {
		AigcVideoTask *wireTaskDetail `json:"AigcVideoTask"`
		RequestId     string          `json:"RequestId"`
		Error         *wireError      `json:"Error"`
	} `json:"Response"`
}

// CreateTask creates one remote generation task. Transport failures are
// retried with exponential backoff and jitter; a provider rejection is
// permanent and returned immediately.
func (c *Client) CreateTask(ctx context.Context, spec provider.CreateTaskSpec) (string, error) {
	body, err := c.buildCreateBody(spec)
	if err != nil {
		return "", fmt.Errorf("failed to build create task body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxCreateRetries; attempt++ {
		if attempt > 0 {
			// delay = base * 2^(attempt-1) * (0.5 + rand(0, 0.5))
			backoff := float64(c.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
			jitter := 0.5 + c.rng.Float64()*0.5
			delay := time.Duration(backoff * jitter)
			c.logger.InfoContext(ctx, "retrying task creation",
				"attempt", attempt+1,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", fmt.Errorf("task creation cancelled: %w", ctx.Err())
			}
		}

		var out createTaskResponse
		if err := c.post(ctx, actionCreateTask, body, &out); err != nil {
			lastErr = err
			c.logger.WarnContext(ctx, "create task transport error",
				"attempt", attempt+1,
				"error", err)
			continue
		}

		if apiErr := out.Response.Error; apiErr != nil {
			return "", fmt.Errorf("%w: %s (%s), request_id=%s",
				provider.ErrCreateRejected, apiErr.Message, apiErr.Code, out.Response.RequestId)
		}
		if out.Response.TaskId == "" {
			return "", fmt.Errorf("%w: create response carried no task id, request_id=%s",
				provider.ErrInvalidResponse, out.Response.RequestId)
		}

		c.logger.InfoContext(ctx, "provider task created",
			"task_id", out.Response.TaskId,
			"model", spec.Model.ID,
			"request_id", out.Response.RequestId)
		return out.Response.TaskId, nil
	}

	return "", fmt.Errorf("task creation failed after %d attempt(s): %w",
		c.cfg.MaxCreateRetries+1, lastErr)
}

// DescribeTask fetches the task's current state and normalizes the
// provider vocabulary onto the provider.Status enum.
func (c *Client) DescribeTask(ctx context.Context, taskID string) (provider.TaskResult, error) {
	body, err := json.Marshal(map[string]any{"TaskId": taskID})
	if err != nil {
		return provider.TaskResult{}, fmt.Errorf("failed to build describe body: %w", err)
	}

	var out describeTaskResponse
	if err := c.post(ctx, actionDescribeTask, body, &out); err != nil {
		return provider.TaskResult{}, err
	}

	if apiErr := out.Response.Error; apiErr != nil {
		if strings.Contains(apiErr.Code, "TaskNotExist") || strings.Contains(apiErr.Code, "ResourceNotFound") {
			return provider.TaskResult{}, fmt.Errorf("%w: %s", provider.ErrTaskNotFound, taskID)
		}
		return provider.TaskResult{}, fmt.Errorf("%w: %s (%s)",
			provider.ErrInvalidResponse, apiErr.Message, apiErr.Code)
	}
	if out.Response.AigcVideoTask == nil {
		return provider.TaskResult{}, fmt.Errorf("%w: describe response carried no task detail",
			provider.ErrInvalidResponse)
	}

	return normalizeResult(taskID, out.Response.AigcVideoTask), nil
}

// buildCreateBody marshals the request fields and then overlays any
// model-specific parameter overrides at the top level, so overrides can
// both add fields and replace standard ones.
func (c *Client) buildCreateBody(spec provider.CreateTaskSpec) ([]byte, error) {
	body := map[string]any{
		"ModelName": spec.Model.ID,
	}
	if c.cfg.SubAppID != "" {
		body["SubAppId"] = c.cfg.SubAppID
	}
	if spec.Model.Version != "" {
		body["ModelVersion"] = spec.Model.Version
	}
	if spec.Prompt != "" {
		body["Prompt"] = spec.Prompt
	}
	if spec.Output.EnhancePrompt {
		body["EnhancePrompt"] = true
	}
	if spec.Output.NegativePrompt != "" {
		body["NegativePrompt"] = spec.Output.NegativePrompt
	}
	if oc := (wireOutputConfig{
		StorageMode:   spec.Output.StorageMode,
		Resolution:    spec.Output.Resolution,
		EnhanceSwitch: spec.Output.EnhanceSwitch,
		AspectRatio:   spec.Output.AspectRatio,
	}); oc != (wireOutputConfig{}) {
		body["OutputConfig"] = oc
	}
	if len(spec.FirstFrameURLs) > 0 {
		infos := make([]wireFileInfo, 0, len(spec.FirstFrameURLs))
		for _, u := range spec.FirstFrameURLs {
			infos = append(infos, wireFileInfo{Type: "Image", URL: u})
		}
		body["FileInfos"] = infos
	}
	if spec.LastFrameURL != "" {
		body["LastFrameUrl"] = spec.LastFrameURL
	}
	if spec.Model.SceneType != "" {
		body["SceneType"] = spec.Model.SceneType
	}
	for k, v := range spec.Params {
		body[k] = v
	}
	return json.Marshal(body)
}

// post signs and sends one API call and decodes the response envelope.
func (c *Client) post(ctx context.Context, action string, body []byte, out any) error {
	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://" + c.cfg.Host
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", action, err)
	}

	headers := RequestHeaders(c.cfg.SecretID, c.cfg.SecretKey, c.cfg.Host,
		action, c.cfg.Version, c.cfg.Region, body, c.now())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	// The signature covers the API host even when the endpoint is overridden.
	req.Host = c.cfg.Host

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned HTTP %d: %s",
			provider.ErrInvalidResponse, action, resp.StatusCode, truncate(data, 256))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v",
			provider.ErrInvalidResponse, action, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
