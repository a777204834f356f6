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

// Replicate prediction states.
const (
	predictionStarting   = "starting"
	predictionProcessing = "processing"
	predictionSucceeded  = "succeeded"
	predictionFailed     = "failed"
	predictionCanceled   = "canceled"
)

// ReplicateClient runs the hosted SDXL image-to-image model used for the
// sketch-to-rendering flow. Unlike Evolink, the overall wait is bounded by a
// hard deadline rather than an attempt count.
type ReplicateClient struct {
	baseURL      string
	apiToken     string
	modelVersion string
	pollInterval time.Duration
	timeout      time.Duration
	httpClient   *http.Client
	sleep        SleepFunc
	log          *slog.Logger
}

func NewReplicateClient(cfg config.Replicate, httpClient *http.Client, log *slog.Logger) *ReplicateClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReplicateClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:     cfg.APIToken,
		modelVersion: cfg.ModelVersion,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		httpClient:   httpClient,
		sleep:        sleepContext,
		log:          log,
	}
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Image             string  `json:"image,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	Strength          float64 `json:"strength,omitempty"`
}

type predictionResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  string   `json:"error"`
}

// GenerateFromSketch submits an image-to-image prediction and polls it to a
// terminal state under the configured deadline. sourceImage is a data URI or
// raw base64 payload; raw payloads are wrapped as JPEG data URIs.
func (c *ReplicateClient) GenerateFromSketch(ctx context.Context, prompt, negativePrompt, sourceImage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if !strings.HasPrefix(sourceImage, "data:") {
		sourceImage = "data:image/jpeg;base64," + sourceImage
	}

	pred, err := c.createPrediction(ctx, predictionRequest{
		Version: c.modelVersion,
		Input: predictionInput{
			Prompt:            prompt,
			NegativePrompt:    negativePrompt,
			Image:             sourceImage,
			NumInferenceSteps: 25,
			GuidanceScale:     7.5,
			Strength:          0.75,
		},
	})
	if err != nil {
		return "", err
	}

	for {
		switch pred.Status {
		case predictionSucceeded:
			if len(pred.Output) == 0 {
				return "", fmt.Errorf("%w: prediction returned no output", ErrGenerationFailed)
			}
			return pred.Output[0], nil
		case predictionFailed, predictionCanceled:
			c.log.Error("replicate prediction failed", "prediction_id", pred.ID, "status", pred.Status, "detail", pred.Error)
			return "", ErrGenerationFailed
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", ErrGenerationTimedOut
			}
			return "", err
		}
		pred, err = c.getPrediction(ctx, pred.ID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", ErrGenerationTimedOut
			}
			return "", err
		}
	}
}

func (c *ReplicateClient) createPrediction(ctx context.Context, reqBody predictionRequest) (*predictionResponse, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiToken)
	return c.doPrediction(req)
}

func (c *ReplicateClient) getPrediction(ctx context.Context, id string) (*predictionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/predictions/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiToken)
	return c.doPrediction(req)
}

func (c *ReplicateClient) doPrediction(req *http.Request) (*predictionResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(req.Context().Err(), context.DeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Error("replicate returned non-2xx", "status", resp.StatusCode, "body", string(detail))
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var pred predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrProviderUnavailable, err)
	}
	return &pred, nil
}
