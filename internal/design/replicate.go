package design

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultReplicateURL  = "https://api.replicate.com/v1"
	defaultPollInterval  = 2 * time.Second
	defaultMaxPolls      = 60
	backgroundRemoverRef = "a029b78cf59c372e6104c9f32c3f24ef95da30e089e11910ff253cd74907f65f"
	DefaultEditModel     = "nano-banana-pro"
)

// EditModel is an image model that accepts a source image.
type EditModel struct {
	Key  string `json:"key"`
	ID   string `json:"id"`
	Name string `json:"name"`
	// Steps is the inference step count sent to models that take one.
	Steps int `json:"-"`
}

var editModels = map[string]EditModel{
	"nano-banana-pro": {Key: "nano-banana-pro", ID: "google/nano-banana-pro", Name: "Nano Banana Pro (Gemini)"},
	"flux-dev":        {Key: "flux-dev", ID: "black-forest-labs/flux-dev", Name: "FLUX.1 Dev", Steps: 50},
	"flux-schnell":    {Key: "flux-schnell", ID: "black-forest-labs/flux-schnell", Name: "FLUX.1 Schnell", Steps: 4},
	"flux-pro":        {Key: "flux-pro", ID: "black-forest-labs/flux-pro", Name: "FLUX.1 Pro", Steps: 50},
	"sdxl":            {Key: "sdxl", ID: "stability-ai/sdxl", Name: "Stable Diffusion XL", Steps: 30},
	"seedream-4":      {Key: "seedream-4", ID: "bytedance/seedream-4", Name: "SeeDream-4", Steps: 30},
	"seedream-3":      {Key: "seedream-3", ID: "bytedance/seedream-3", Name: "SeeDream-3", Steps: 30},
}

// EditModels lists the models EditImage accepts, sorted by key.
func EditModels() []EditModel {
	out := make([]EditModel, 0, len(editModels))
	for _, model := range editModels {
		out = append(out, model)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// editInput shapes the request for each model family.
func editInput(model EditModel, imageURL, instructions string) map[string]any {
	input := map[string]any{"prompt": instructions, "image": imageURL}
	switch {
	case strings.Contains(model.ID, "nano-banana"):
		input["aspect_ratio"] = "1:1"
		input["output_format"] = "png"
	case strings.Contains(model.ID, "flux"), strings.Contains(model.ID, "seedream"):
		input["aspect_ratio"] = "1:1"
		input["num_inference_steps"] = model.Steps
	default:
		input["width"] = 1024
		input["height"] = 1024
		input["num_inference_steps"] = model.Steps
	}
	return input
}

type ReplicateConfig struct {
	APIToken     string
	URL          string
	PollInterval time.Duration
	MaxPolls     uint
	HTTPClient   *http.Client
}

// Replicate runs hosted image models for background removal and edits.
type Replicate struct {
	cfg        ReplicateConfig
	httpClient *http.Client
}

func NewReplicate(cfg ReplicateConfig) *Replicate {
	if cfg.URL == "" {
		cfg.URL = defaultReplicateURL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPolls == 0 {
		cfg.MaxPolls = defaultMaxPolls
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Replicate{cfg: cfg, httpClient: httpClient}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *prediction) done() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	default:
		return false
	}
}

// RemoveBackground returns a URL for imageURL with its background cut out.
func (r *Replicate) RemoveBackground(ctx context.Context, imageURL string) (string, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", fmt.Errorf("%w: image_url is required", ErrInvalidImage)
	}
	return r.run(ctx, r.cfg.URL+"/predictions", map[string]any{
		"version": backgroundRemoverRef,
		"input":   map[string]any{"image": imageURL},
	})
}

type EditRequest struct {
	ImageURL     string `json:"image_url"`
	Instructions string `json:"instructions"`
	// Area names the part of the design being edited. It is only logged.
	Area  string `json:"area"`
	Model string `json:"model"`
}

// EditImage applies instructions to an existing design with an image model.
func (r *Replicate) EditImage(ctx context.Context, req EditRequest) (string, error) {
	if strings.TrimSpace(req.ImageURL) == "" || strings.TrimSpace(req.Instructions) == "" {
		return "", ErrEmptyEdit
	}
	key := req.Model
	if key == "" {
		key = DefaultEditModel
	}
	model, ok := editModels[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, key)
	}
	return r.run(ctx, r.cfg.URL+"/models/"+model.ID+"/predictions", map[string]any{
		"input": editInput(model, req.ImageURL, req.Instructions),
	})
}

// run creates a prediction, asking the API to hold the response until it
// finishes, and polls the prediction when it comes back still running.
func (r *Replicate) run(ctx context.Context, url string, body map[string]any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal prediction: %w", err)
	}

	pred, err := r.call(ctx, http.MethodPost, url, payload)
	if err != nil {
		return "", err
	}
	if !pred.done() {
		pred, err = r.poll(ctx, pred)
		if err != nil {
			return "", err
		}
	}
	if pred.Status != "succeeded" {
		return "", fmt.Errorf("%w: prediction %s %s: %v", ErrPredictionFail, pred.ID, pred.Status, pred.Error)
	}

	imageURL := predictionImage(pred.Output)
	if imageURL == "" {
		return "", ErrNoImage
	}
	return imageURL, nil
}

var errPredictionRunning = errors.New("prediction still running")

func (r *Replicate) poll(ctx context.Context, pred *prediction) (*prediction, error) {
	if pred.URLs.Get == "" {
		return nil, fmt.Errorf("prediction %s has no status url", pred.ID)
	}
	getURL := pred.URLs.Get

	last, err := backoff.Retry(ctx, func() (*prediction, error) {
		current, err := r.call(ctx, http.MethodGet, getURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !current.done() {
			return current, errPredictionRunning
		}
		return current, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.cfg.PollInterval)),
		backoff.WithMaxTries(r.cfg.MaxPolls),
	)
	if errors.Is(err, errPredictionRunning) {
		return nil, fmt.Errorf("prediction %s still running after %d polls", pred.ID, r.cfg.MaxPolls)
	}
	return last, err
}

func (r *Replicate) call(ctx context.Context, method, url string, payload []byte) (*prediction, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "wait")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call replicate: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read replicate response: %w", readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close replicate response body: %w", closeErr)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if len(raw) > maxProviderBodyBytes {
			raw = raw[:maxProviderBodyBytes]
		}
		return nil, &ProviderError{Provider: "replicate", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out prediction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to parse replicate response: %w", err)
	}
	return &out, nil
}

// predictionImage reads a single URL or the first of a list of URLs.
func predictionImage(output json.RawMessage) string {
	var single string
	if err := json.Unmarshal(output, &single); err == nil {
		return single
	}
	var list []string
	if err := json.Unmarshal(output, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
