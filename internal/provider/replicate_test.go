package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/renderyard/backend/internal/config"
)

func testReplicateClient(t *testing.T, srv *httptest.Server, timeout time.Duration) *ReplicateClient {
	t.Helper()
	c := NewReplicateClient(config.Replicate{
		BaseURL:      srv.URL,
		APIToken:     "test-token",
		ModelVersion: "stability-ai/sdxl:39ed52f2",
		PollInterval: time.Millisecond,
		Timeout:      timeout,
	}, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func TestGenerateFromSketch(t *testing.T) {
	var createBody predictionRequest
	var gotAuth string
	var gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/predictions":
			gotAuth = r.Header.Get("Authorization")
			if err := json.NewDecoder(r.Body).Decode(&createBody); err != nil {
				t.Fatalf("decoding create body: %v", err)
			}
			fmt.Fprint(w, `{"id":"pred-1","status":"starting"}`)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/predictions/"):
			gets++
			if gets < 2 {
				fmt.Fprint(w, `{"id":"pred-1","status":"processing"}`)
				return
			}
			fmt.Fprint(w, `{"id":"pred-1","status":"succeeded","output":["https://replicate.delivery/out.png"]}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := testReplicateClient(t, srv, time.Minute)
	url, err := c.GenerateFromSketch(context.Background(), "a modern villa", "blurry, low quality", "/9j/4AAQSkZJRg")
	if err != nil {
		t.Fatalf("GenerateFromSketch: %v", err)
	}
	if url != "https://replicate.delivery/out.png" {
		t.Errorf("output url: got %q", url)
	}
	if gotAuth != "Token test-token" {
		t.Errorf("Authorization header: got %q", gotAuth)
	}
	if createBody.Version != "stability-ai/sdxl:39ed52f2" {
		t.Errorf("version: got %q", createBody.Version)
	}
	// raw base64 payloads get wrapped as a JPEG data URI
	if want := "data:image/jpeg;base64,/9j/4AAQSkZJRg"; createBody.Input.Image != want {
		t.Errorf("image: got %q, want %q", createBody.Input.Image, want)
	}
	if createBody.Input.NegativePrompt != "blurry, low quality" {
		t.Errorf("negative prompt: got %q", createBody.Input.NegativePrompt)
	}
	if createBody.Input.NumInferenceSteps != 25 || createBody.Input.GuidanceScale != 7.5 || createBody.Input.Strength != 0.75 {
		t.Errorf("tuning params: got %+v", createBody.Input)
	}
}

func TestGenerateFromSketch_KeepsDataURI(t *testing.T) {
	var createBody predictionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&createBody)
		fmt.Fprint(w, `{"id":"pred-1","status":"succeeded","output":["https://replicate.delivery/out.png"]}`)
	}))
	defer srv.Close()

	c := testReplicateClient(t, srv, time.Minute)
	if _, err := c.GenerateFromSketch(context.Background(), "a villa", "", "data:image/png;base64,iVBOR"); err != nil {
		t.Fatalf("GenerateFromSketch: %v", err)
	}
	if createBody.Input.Image != "data:image/png;base64,iVBOR" {
		t.Errorf("data URI must pass through unchanged, got %q", createBody.Input.Image)
	}
}

func TestGenerateFromSketch_Failed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"pred-1","status":"failed","error":"NSFW content detected"}`)
	}))
	defer srv.Close()

	c := testReplicateClient(t, srv, time.Minute)
	_, err := c.GenerateFromSketch(context.Background(), "a villa", "", "abc")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got: %v", err)
	}
}

func TestGenerateFromSketch_SucceededWithoutOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"pred-1","status":"succeeded","output":[]}`)
	}))
	defer srv.Close()

	c := testReplicateClient(t, srv, time.Minute)
	_, err := c.GenerateFromSketch(context.Background(), "a villa", "", "abc")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got: %v", err)
	}
}

func TestGenerateFromSketch_DeadlineExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// never reaches a terminal state
		fmt.Fprint(w, `{"id":"pred-1","status":"processing"}`)
	}))
	defer srv.Close()

	c := testReplicateClient(t, srv, 20*time.Millisecond)
	c.sleep = sleepContext
	c.pollInterval = 5 * time.Millisecond

	_, err := c.GenerateFromSketch(context.Background(), "a villa", "", "abc")
	if !errors.Is(err, ErrGenerationTimedOut) {
		t.Fatalf("expected ErrGenerationTimedOut, got: %v", err)
	}
}

func TestGenerateFromSketch_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testReplicateClient(t, srv, time.Minute)
	_, err := c.GenerateFromSketch(context.Background(), "a villa", "", "abc")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got: %v", err)
	}
}
