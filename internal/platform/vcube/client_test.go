package vcube

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/provider"
)

func testConfig(endpoint string) Config {
	return Config{
		SecretID:       "AKIDtest",
		SecretKey:      "testsecretkey",
		Host:           "vcube.example-cloud.com",
		Region:         "ap-guangzhou",
		Version:        "2023-07-01",
		SubAppID:       "301234567",
		Timeout:        5 * time.Second,
		RetryBaseDelay: time.Millisecond,
		Endpoint:       endpoint,
		PollPolicies: map[domain.ModelClass]provider.PollPolicy{
			domain.ModelClassStandard: {Interval: time.Millisecond, MaxAttempts: 5, MaxElapsed: time.Second},
		},
	}
}

func newTestClient(t *testing.T, endpoint string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := testConfig(endpoint)
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewClient(cfg, slog.Default())
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("rejects missing credentials", func(t *testing.T) {
		t.Parallel()

		_, err := NewClient(Config{Host: "h.example.com", Version: "v"}, slog.Default())
		assert.ErrorIs(t, err, provider.ErrInvalidConfig)
	})

	t.Run("rejects nil logger", func(t *testing.T) {
		t.Parallel()

		_, err := NewClient(testConfig(""), nil)
		assert.Error(t, err)
	})

	t.Run("fills defaults", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig("")
		cfg.Timeout = 0
		cfg.PollPolicies = nil
		client, err := NewClient(cfg, slog.Default())
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, client.cfg.Timeout)
		assert.Equal(t, DefaultPollPolicies(), client.cfg.PollPolicies)
	})
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	t.Run("sends signed request and returns task id", func(t *testing.T) {
		t.Parallel()

		var gotBody map[string]any
		var gotHeaders http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			gotHeaders.Set("Host", r.Host)
			data, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(data, &gotBody))
			_, _ = w.Write([]byte(`{"Response":{"TaskId":"task-123","RequestId":"req-1"}}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, nil)
		taskID, err := client.CreateTask(context.Background(), provider.CreateTaskSpec{
			Model:          domain.ModelSpec{ID: "pixelmotion-v2", Version: "2.1"},
			Prompt:         "a red fox",
			FirstFrameURLs: []string{"https://cdn.example.com/a.png"},
			Output:         domain.OutputConfig{Resolution: "720p", AspectRatio: "16:9"},
			Params:         map[string]any{"Seed": float64(42)},
		})

		require.NoError(t, err)
		assert.Equal(t, "task-123", taskID)

		assert.Equal(t, "CreateAigcVideoTask", gotHeaders.Get("X-TC-Action"))
		assert.Equal(t, "2023-07-01", gotHeaders.Get("X-TC-Version"))
		assert.Equal(t, "ap-guangzhou", gotHeaders.Get("X-TC-Region"))
		assert.Contains(t, gotHeaders.Get("Authorization"), "TC3-HMAC-SHA256 Credential=AKIDtest/")
		// Signature covers the API host, not the test server's.
		assert.Equal(t, "vcube.example-cloud.com", gotHeaders.Get("Host"))

		assert.Equal(t, "pixelmotion-v2", gotBody["ModelName"])
		assert.Equal(t, "2.1", gotBody["ModelVersion"])
		assert.Equal(t, "a red fox", gotBody["Prompt"])
		assert.Equal(t, "301234567", gotBody["SubAppId"])
		assert.Equal(t, float64(42), gotBody["Seed"])
		require.Len(t, gotBody["FileInfos"], 1)
	})

	t.Run("returns rejection immediately without retrying", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"Response":{"RequestId":"req-2","Error":{"Code":"InvalidParameter","Message":"bad prompt"}}}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxCreateRetries = 3 })
		_, err := client.CreateTask(context.Background(), provider.CreateTaskSpec{
			Model: domain.ModelSpec{ID: "m"},
		})

		assert.ErrorIs(t, err, provider.ErrCreateRejected)
		assert.Contains(t, err.Error(), "bad prompt")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("retries transport errors then succeeds", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{"Response":{"TaskId":"task-456"}}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxCreateRetries = 2 })
		taskID, err := client.CreateTask(context.Background(), provider.CreateTaskSpec{
			Model: domain.ModelSpec{ID: "m"},
		})

		require.NoError(t, err)
		assert.Equal(t, "task-456", taskID)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("gives up after retry budget is exhausted", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxCreateRetries = 2 })
		_, err := client.CreateTask(context.Background(), provider.CreateTaskSpec{
			Model: domain.ModelSpec{ID: "m"},
		})

		assert.Error(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("rejects a response without a task id", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"Response":{"RequestId":"req-3"}}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, nil)
		_, err := client.CreateTask(context.Background(), provider.CreateTaskSpec{
			Model: domain.ModelSpec{ID: "m"},
		})
		assert.ErrorIs(t, err, provider.ErrInvalidResponse)
	})
}

func TestDescribeTask(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, payload string) *Client {
		t.Helper()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "DescribeTaskDetail", r.Header.Get("X-TC-Action"))
			_, _ = w.Write([]byte(payload))
		}))
		t.Cleanup(srv.Close)
		return newTestClient(t, srv.URL, nil)
	}

	t.Run("maps a running task to processing", func(t *testing.T) {
		t.Parallel()

		client := serve(t, `{"Response":{"AigcVideoTask":{"Status":"RUN","Progress":37}}}`)
		res, err := client.DescribeTask(context.Background(), "task-1")

		require.NoError(t, err)
		assert.Equal(t, provider.StatusProcessing, res.Status)
		assert.Equal(t, 37, res.Progress)
	})

	t.Run("maps an unknown status to processing", func(t *testing.T) {
		t.Parallel()

		client := serve(t, `{"Response":{"AigcVideoTask":{"Status":"SOME_NEW_STATE","Progress":10}}}`)
		res, err := client.DescribeTask(context.Background(), "task-1")

		require.NoError(t, err)
		assert.Equal(t, provider.StatusProcessing, res.Status)
	})

	t.Run("maps a finished task with outputs", func(t *testing.T) {
		t.Parallel()

		client := serve(t, `{"Response":{"AigcVideoTask":{
			"Status":"FINISH","Progress":100,
			"Output":{"FileInfos":[{"FileUrl":"https://out.example.com/v.mp4",
				"MetaData":{"Duration":5.2,"CoverUrl":"https://out.example.com/c.jpg"}}]}}}}`)
		res, err := client.DescribeTask(context.Background(), "task-1")

		require.NoError(t, err)
		assert.Equal(t, provider.StatusFinished, res.Status)
		assert.Equal(t, 100, res.Progress)
		assert.Equal(t, "https://out.example.com/v.mp4", res.VideoURL)
		assert.Equal(t, "https://out.example.com/c.jpg", res.CoverURL)
		assert.InDelta(t, 5.2, res.DurationSeconds, 0.001)
		assert.Nil(t, res.Err)
	})

	t.Run("treats finish with a non-zero error code as failed", func(t *testing.T) {
		t.Parallel()

		client := serve(t, `{"Response":{"AigcVideoTask":{"Status":"FINISH","ErrCode":1002,"ErrMsg":"content rejected"}}}`)
		res, err := client.DescribeTask(context.Background(), "task-1")

		require.NoError(t, err)
		assert.Equal(t, provider.StatusFailed, res.Status)
		require.NotNil(t, res.Err)
		assert.Equal(t, domain.FailureExecution, res.Err.Reason)
		assert.Contains(t, res.Err.Message, "content rejected")
	})

	t.Run("maps a failed task", func(t *testing.T) {
		t.Parallel()

		client := serve(t, `{"Response":{"AigcVideoTask":{"Status":"FAIL","ErrCode":500,"ErrMsg":"internal"}}}`)
		res, err := client.DescribeTask(context.Background(), "task-1")

		require.NoError(t, err)
		assert.Equal(t, provider.StatusFailed, res.Status)
		require.NotNil(t, res.Err)
	})

	t.Run("returns not-found for a missing task", func(t *testing.T) {
		t.Parallel()

		client := serve(t, `{"Response":{"Error":{"Code":"ResourceNotFound.TaskNotExist","Message":"no such task"}}}`)
		_, err := client.DescribeTask(context.Background(), "task-gone")
		assert.ErrorIs(t, err, provider.ErrTaskNotFound)
	})

	t.Run("rejects a response without task detail", func(t *testing.T) {
		t.Parallel()

		client := serve(t, `{"Response":{"RequestId":"req-9"}}`)
		_, err := client.DescribeTask(context.Background(), "task-1")
		assert.ErrorIs(t, err, provider.ErrInvalidResponse)
	})
}

func TestWaitForCompletion(t *testing.T) {
	t.Parallel()

	model := domain.ModelSpec{ID: "pixelmotion-v2", Class: domain.ModelClassStandard}

	t.Run("polls until terminal and reports every tick", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch calls.Add(1) {
			case 1:
				_, _ = w.Write([]byte(`{"Response":{"AigcVideoTask":{"Status":"RUN","Progress":40}}}`))
			case 2:
				_, _ = w.Write([]byte(`{"Response":{"AigcVideoTask":{"Status":"RUN","Progress":80}}}`))
			default:
				_, _ = w.Write([]byte(`{"Response":{"AigcVideoTask":{"Status":"FINISH","Progress":100,
					"Output":{"FileInfos":[{"FileUrl":"https://out.example.com/v.mp4"}]}}}}`))
			}
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, nil)

		var ticks []provider.TaskResult
		res, err := client.WaitForCompletion(context.Background(), "task-1", model, func(r provider.TaskResult) {
			ticks = append(ticks, r)
		})

		require.NoError(t, err)
		assert.Equal(t, provider.StatusFinished, res.Status)
		assert.Equal(t, 3, res.PollCount)
		require.Len(t, ticks, 3)
		assert.Equal(t, 40, ticks[0].Progress)
		assert.Equal(t, 80, ticks[1].Progress)
		assert.Equal(t, provider.StatusFinished, ticks[2].Status)
	})

	t.Run("poll ceiling yields a terminal timeout failure", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"Response":{"AigcVideoTask":{"Status":"RUN","Progress":50}}}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, func(cfg *Config) {
			cfg.PollPolicies = map[domain.ModelClass]provider.PollPolicy{
				domain.ModelClassStandard: {Interval: time.Millisecond, MaxAttempts: 3, MaxElapsed: time.Minute},
			}
		})

		res, err := client.WaitForCompletion(context.Background(), "task-1", model, nil)

		require.NoError(t, err)
		assert.Equal(t, provider.StatusFailed, res.Status)
		assert.Equal(t, 3, res.PollCount)
		require.NotNil(t, res.Err)
		assert.Equal(t, domain.FailureTimeout, res.Err.Reason)
	})

	t.Run("transient describe errors do not abort the loop", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"Response":{"AigcVideoTask":{"Status":"FINISH","Progress":100}}}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, nil)
		res, err := client.WaitForCompletion(context.Background(), "task-1", model, nil)

		require.NoError(t, err)
		assert.Equal(t, provider.StatusFinished, res.Status)
		assert.Equal(t, 2, res.PollCount)
	})

	t.Run("context cancellation aborts polling", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"Response":{"AigcVideoTask":{"Status":"RUN"}}}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, func(cfg *Config) {
			cfg.PollPolicies = map[domain.ModelClass]provider.PollPolicy{
				domain.ModelClassStandard: {Interval: time.Hour, MaxAttempts: 100, MaxElapsed: 0},
			}
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.WaitForCompletion(ctx, "task-1", model, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unknown model class falls back to the standard policy", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, "", nil)
		policy := client.pollPolicy(domain.ModelClass("exotic"))
		assert.Equal(t, client.cfg.PollPolicies[domain.ModelClassStandard], policy)
	})
}
