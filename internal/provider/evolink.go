// Package provider wraps the third-party image generation APIs. Clients are
// thin HTTP adapters: submit a job, poll it to a terminal state, hand result
// URLs back to the orchestrator. All tunables (keys, URLs, poll budget) come
// from config at construction time.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/renderyard/backend/internal/config"
)

var (
	// ErrProviderUnavailable covers transport errors and non-2xx provider responses.
	ErrProviderUnavailable = errors.New("generation provider unavailable")
	// ErrGenerationFailed is returned when the provider reports a terminal failure.
	ErrGenerationFailed = errors.New("image generation failed")
	// ErrGenerationTimedOut is returned when the poll attempt budget is exhausted.
	ErrGenerationTimedOut = errors.New("image generation timed out")
)

// Provider task states.
const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// SleepFunc waits for d or until ctx is done. Injectable so tests can run
// many poll attempts without wall-clock delay.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EvolinkClient talks to the Evolink task-based generation API.
type EvolinkClient struct {
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	maxAttempts  int
	httpClient   *http.Client
	sleep        SleepFunc
	log          *slog.Logger
}

// NewEvolinkClient constructs a client from config. If httpClient is nil, a
// client with a 30 second timeout is used (each submit/poll call is short;
// the long wait lives in the poll loop, not a single request).
func NewEvolinkClient(cfg config.Evolink, httpClient *http.Client, log *slog.Logger) *EvolinkClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &EvolinkClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxPollAttempts,
		httpClient:   httpClient,
		sleep:        sleepContext,
		log:          log,
	}
}

// taskResponse is the provider's task envelope. Completed tasks carry result
// URLs in either the flat results field or the nested result.images list,
// depending on the model; both shapes must be handled.
type taskResponse struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Progress int      `json:"progress"`
	Results  []string `json:"results"`
	Result   *struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"result"`
}

func (t *taskResponse) imageURLs() []string {
	if len(t.Results) > 0 {
		return t.Results
	}
	if t.Result == nil {
		return nil
	}
	urls := make([]string, 0, len(t.Result.Images))
	for _, img := range t.Result.Images {
		urls = append(urls, img.URL)
	}
	return urls
}

// SubmitGeneration creates a generation task and returns the provider's
// opaque task ID. Inline/base64 source images are filtered out before the
// call; the provider only accepts absolute HTTP(S) URLs.
func (c *EvolinkClient) SubmitGeneration(ctx context.Context, prompt, size string, imageURLs []string) (string, error) {
	bodyMap := map[string]interface{}{
		"model":  c.model,
		"prompt": prompt,
		"size":   size,
	}
	if valid := filterImageURLs(imageURLs); len(valid) > 0 {
		bodyMap["image_urls"] = valid
	}
	payload, err := json.Marshal(bodyMap)
	if err != nil {
		return "", fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: submit: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Error("evolink submit returned non-2xx", "status", resp.StatusCode, "body", string(detail))
		return "", fmt.Errorf("%w: submit returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return "", fmt.Errorf("%w: decoding submit response: %v", ErrProviderUnavailable, err)
	}
	if task.ID == "" {
		return "", fmt.Errorf("%w: submit response carried no task id", ErrProviderUnavailable)
	}
	return task.ID, nil
}

// PollUntilDone fetches task status at a fixed interval until the task
// completes, fails, or the attempt budget runs out. No backoff, no jitter:
// with the default 60 attempts at 2s this caps the wait at ~2 minutes.
func (c *EvolinkClient) PollUntilDone(ctx context.Context, taskID string) ([]string, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		task, err := c.taskStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}
		c.log.Debug("polled generation task",
			"task_id", taskID, "attempt", attempt, "status", task.Status, "progress", task.Progress)

		switch task.Status {
		case TaskCompleted:
			urls := task.imageURLs()
			if len(urls) == 0 {
				return nil, fmt.Errorf("%w: no images returned", ErrGenerationFailed)
			}
			return urls, nil
		case TaskFailed:
			return nil, ErrGenerationFailed
		}

		if attempt < c.maxAttempts {
			if err := c.sleep(ctx, c.pollInterval); err != nil {
				return nil, err
			}
		}
	}
	return nil, ErrGenerationTimedOut
}

func (c *EvolinkClient) taskStatus(ctx context.Context, taskID string) (*taskResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: poll: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: poll returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("%w: decoding poll response: %v", ErrProviderUnavailable, err)
	}
	return &task, nil
}

// filterImageURLs keeps only absolute HTTP(S) URLs. The provider rejects
// inline data URIs, so those are dropped rather than forwarded.
func filterImageURLs(urls []string) []string {
	var valid []string
	for _, u := range urls {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			valid = append(valid, u)
		}
	}
	return valid
}

// aspectRatios is the provider's supported size hints.
var aspectRatios = map[string]bool{
	"1:1": true, "4:3": true, "3:4": true, "3:2": true,
	"2:3": true, "16:9": true, "9:16": true,
}

// MapAspectRatio normalizes an aspect ratio hint. Unrecognized or absent
// values fall back to 16:9.
func MapAspectRatio(ratio string) string {
	if aspectRatios[ratio] {
		return ratio
	}
	return "16:9"
}
