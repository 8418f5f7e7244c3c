package design

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultOpenRouterURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenRouterModelsURL = "https://openrouter.ai/api/v1/models"
	maxProviderBodyBytes       = 4 << 10
)

const enhancePromptTemplate = `Transform this simple prompt into a detailed, high-quality prompt for creating print designs for merchandise. Make it specific, detailed, and artistic.

IMPORTANT: The design should be isolated, not shown on clothing. Focus on the design itself.

User prompt: %s%s

Return only the enhanced prompt, nothing else. Make it concise but detailed (2-3 sentences max).`

const ideasSystemPrompt = `You are a creative designer specialized in generating unique and trendy design ideas for merchandise (t-shirts, hoodies, posters, mugs).
Your ideas should be original, suitable for print-on-demand products, appealing to modern audiences and described in detail for AI image generation.

Always respond in JSON format with an array of ideas. Each idea should have:
- "title": Short catchy name (2-4 words)
- "prompt": Detailed prompt for image generation (in English, optimized for AI)
- "tags": Array of 3-5 relevant tags`

const ideasUserTemplate = `Generate %d unique design ideas for the theme: "%s"%s.

Make each idea distinct and creative. The prompts should be detailed enough for AI image generation, focusing on visual elements, colors, composition, and style.

Return ONLY valid JSON in this format:
{"ideas": [{"title": "Design Name", "prompt": "Detailed prompt for AI image generation...", "tags": ["tag1", "tag2", "tag3"]}]}`

var (
	inlineDataURL = regexp.MustCompile(`data:image/[^;]+;base64,[A-Za-z0-9+/=]+`)
	jsonObject    = regexp.MustCompile(`(?s)\{.*\}`)
	jsonArray     = regexp.MustCompile(`(?s)\[.*\]`)
)

type OpenRouterConfig struct {
	APIKey     string
	ImageModel string
	TextModel  string
	// Referer and Title identify the app to the router.
	Referer    string
	Title      string
	URL        string
	ModelsURL  string
	HTTPClient *http.Client
}

type OpenRouter struct {
	cfg        OpenRouterConfig
	httpClient *http.Client
}

func NewOpenRouter(cfg OpenRouterConfig) *OpenRouter {
	if cfg.URL == "" {
		cfg.URL = defaultOpenRouterURL
	}
	if cfg.ModelsURL == "" {
		cfg.ModelsURL = defaultOpenRouterModelsURL
	}
	if cfg.Title == "" {
		cfg.Title = "Sifrok - AI Design Generator"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenRouter{cfg: cfg, httpClient: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Modalities  []string      `json:"modalities,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message responseMessage `json:"message"`
	} `json:"choices"`
}

type responseMessage struct {
	Content json.RawMessage `json:"content"`
	Images  []struct {
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	} `json:"images"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
	InlineData *struct {
		Data     string `json:"data"`
		MimeType string `json:"mime_type"`
	} `json:"inline_data"`
}

// GenerateImage asks the image model for a design and returns an image URL,
// which may be a data URL.
func (o *OpenRouter) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := o.complete(ctx, chatRequest{
		Model:      o.cfg.ImageModel,
		Modalities: []string{"text", "image"},
		Messages:   []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoImage
	}

	url := extractImageURL(resp.Choices[0].Message)
	if url == "" {
		return "", ErrNoImage
	}
	return url, nil
}

// EnhancePrompt rewrites a short idea into a detailed print design prompt.
func (o *OpenRouter) EnhancePrompt(ctx context.Context, prompt, instructions string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	extra := ""
	if strings.TrimSpace(instructions) != "" {
		extra = "\n\nAdditional instructions: " + instructions
	}

	resp, err := o.complete(ctx, chatRequest{
		Model:     o.cfg.TextModel,
		Messages:  []chatMessage{{Role: "user", Content: fmt.Sprintf(enhancePromptTemplate, prompt, extra)}},
		MaxTokens: 250,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter returned no choices")
	}

	text := strings.TrimSpace(messageText(resp.Choices[0].Message))
	if text == "" {
		return "", fmt.Errorf("openrouter returned an empty prompt")
	}
	return text, nil
}

type IdeaRequest struct {
	Theme string `json:"theme"`
	Style string `json:"style"`
	Count int    `json:"count"`
	// Model overrides the configured text model.
	Model string `json:"model"`
}

type Idea struct {
	Title  string   `json:"title"`
	Prompt string   `json:"prompt"`
	Tags   []string `json:"tags"`
}

// GenerateIdeas asks the text model for design ideas on a theme. Count must
// already be bounded by the caller.
func (o *OpenRouter) GenerateIdeas(ctx context.Context, req IdeaRequest) ([]Idea, string, error) {
	if strings.TrimSpace(req.Theme) == "" {
		return nil, "", ErrEmptyTheme
	}
	model := req.Model
	if model == "" {
		model = o.cfg.TextModel
	}
	style := ""
	if strings.TrimSpace(req.Style) != "" {
		style = " in " + req.Style + " style"
	}

	resp, err := o.complete(ctx, chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: ideasSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(ideasUserTemplate, req.Count, req.Theme, style)},
		},
		MaxTokens:   2000,
		Temperature: 0.9,
	})
	if err != nil {
		return nil, model, err
	}
	if len(resp.Choices) == 0 {
		return nil, model, ErrNoIdeas
	}

	ideas := parseIdeas(messageText(resp.Choices[0].Message))
	if len(ideas) == 0 {
		return nil, model, ErrNoIdeas
	}
	return ideas, model, nil
}

// parseIdeas accepts an {"ideas": [...]} object or a bare array, optionally
// wrapped in prose or code fences.
func parseIdeas(text string) []Idea {
	if raw := jsonObject.FindString(text); raw != "" {
		var wrapped struct {
			Ideas []Idea `json:"ideas"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && len(wrapped.Ideas) > 0 {
			return usableIdeas(wrapped.Ideas)
		}
	}
	if raw := jsonArray.FindString(text); raw != "" {
		var ideas []Idea
		if err := json.Unmarshal([]byte(raw), &ideas); err == nil {
			return usableIdeas(ideas)
		}
	}
	return nil
}

func usableIdeas(ideas []Idea) []Idea {
	out := ideas[:0]
	for _, idea := range ideas {
		if strings.TrimSpace(idea.Prompt) == "" {
			continue
		}
		if idea.Tags == nil {
			idea.Tags = []string{}
		}
		out = append(out, idea)
	}
	return out
}

type ModelPricing struct {
	Prompt     decimal.Decimal  `json:"prompt"`
	Completion decimal.Decimal  `json:"completion"`
	Image      *decimal.Decimal `json:"image,omitempty"`
}

type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Provider          string       `json:"provider"`
	Description       string       `json:"description"`
	ContextLength     int          `json:"context_length"`
	Pricing           ModelPricing `json:"pricing"`
	Free              bool         `json:"is_free"`
	CanGenerateText   bool         `json:"can_generate_text"`
	CanGenerateImages bool         `json:"can_generate_images"`
	Modality          string       `json:"modality"`
}

// ModelCatalog splits the router's models by what they can output. Free
// models sort first, then by provider.
type ModelCatalog struct {
	TextModels  []Model   `json:"text_models"`
	ImageModels []Model   `json:"image_models"`
	TotalModels int       `json:"total_models"`
	FetchedAt   time.Time `json:"last_updated"`
}

type modelsResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Description   string `json:"description"`
		ContextLength int    `json:"context_length"`
		Architecture  struct {
			Modality         string   `json:"modality"`
			OutputModalities []string `json:"output_modalities"`
		} `json:"architecture"`
		Pricing struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
			Image      string `json:"image"`
		} `json:"pricing"`
	} `json:"data"`
}

func (o *OpenRouter) ListModels(ctx context.Context) (*ModelCatalog, error) {
	raw, err := o.send(ctx, http.MethodGet, o.cfg.ModelsURL, nil)
	if err != nil {
		return nil, err
	}
	var resp modelsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse openrouter models: %w", err)
	}

	out := &ModelCatalog{
		TextModels:  []Model{},
		ImageModels: []Model{},
		TotalModels: len(resp.Data),
		FetchedAt:   time.Now().UTC(),
	}
	for _, entry := range resp.Data {
		provider, name, found := strings.Cut(entry.Name, ":")
		name = strings.TrimSpace(name)
		provider = strings.TrimSpace(provider)
		if !found || name == "" {
			name = entry.Name
		}
		if name == "" {
			name = entry.ID
		}
		if !found || provider == "" {
			provider = "Unknown"
		}

		model := Model{
			ID:                entry.ID,
			Name:              name,
			Provider:          provider,
			Description:       entry.Description,
			ContextLength:     entry.ContextLength,
			Pricing:           ModelPricing{Prompt: price(entry.Pricing.Prompt), Completion: price(entry.Pricing.Completion)},
			CanGenerateText:   slices.Contains(entry.Architecture.OutputModalities, "text"),
			CanGenerateImages: slices.Contains(entry.Architecture.OutputModalities, "image"),
			Modality:          entry.Architecture.Modality,
		}
		if entry.Pricing.Image != "" {
			image := price(entry.Pricing.Image)
			model.Pricing.Image = &image
		}
		if model.Modality == "" {
			model.Modality = "text->text"
		}
		model.Free = model.Pricing.Prompt.IsZero() && model.Pricing.Completion.IsZero()

		if model.CanGenerateText {
			out.TextModels = append(out.TextModels, model)
		}
		if model.CanGenerateImages {
			out.ImageModels = append(out.ImageModels, model)
		}
	}
	slices.SortStableFunc(out.TextModels, compareModels)
	slices.SortStableFunc(out.ImageModels, compareModels)
	return out, nil
}

// price reads a per-token price string. Unparseable prices count as zero.
func price(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func compareModels(a, b Model) int {
	if a.Free != b.Free {
		if a.Free {
			return -1
		}
		return 1
	}
	return strings.Compare(strings.ToLower(a.Provider), strings.ToLower(b.Provider))
}

func (o *OpenRouter) complete(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := o.send(ctx, http.MethodPost, o.cfg.URL, payload)
	if err != nil {
		return nil, err
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to parse openrouter response: %w", err)
	}
	return &out, nil
}

func (o *OpenRouter) send(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Title", o.cfg.Title)
	if o.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", o.cfg.Referer)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call openrouter: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read openrouter response: %w", readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close openrouter response body: %w", closeErr)
	}

	if resp.StatusCode != http.StatusOK {
		if len(raw) > maxProviderBodyBytes {
			raw = raw[:maxProviderBodyBytes]
		}
		return nil, &ProviderError{Provider: "openrouter", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

// extractImageURL reads the image from the shapes providers answer with:
// an images list, image_url content parts, inline base64 parts, or a data
// URL embedded in text.
func extractImageURL(msg responseMessage) string {
	for _, image := range msg.Images {
		if image.ImageURL.URL != "" {
			return image.ImageURL.URL
		}
	}

	var parts []contentPart
	if err := json.Unmarshal(msg.Content, &parts); err == nil {
		for _, part := range parts {
			if part.Type == "image_url" && part.ImageURL != nil && part.ImageURL.URL != "" {
				return part.ImageURL.URL
			}
			if part.InlineData != nil && part.InlineData.Data != "" {
				mime := part.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				return "data:" + mime + ";base64," + part.InlineData.Data
			}
		}
		return ""
	}

	var text string
	if err := json.Unmarshal(msg.Content, &text); err == nil {
		return inlineDataURL.FindString(text)
	}
	return ""
}

func messageText(msg responseMessage) string {
	var text string
	if err := json.Unmarshal(msg.Content, &text); err == nil {
		return text
	}

	var parts []contentPart
	if err := json.Unmarshal(msg.Content, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, part := range parts {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
