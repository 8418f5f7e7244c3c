package design

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultImgurURL    = "https://api.imgur.com/3/image"
	maxDownloadBytes   = 20 << 20
	temporaryImageHost = "replicate.delivery"
)

type ImgurConfig struct {
	ClientID   string
	URL        string
	HTTPClient *http.Client
}

// Imgur re-hosts generated images so the vendor can fetch them later.
type Imgur struct {
	clientID   string
	url        string
	httpClient *http.Client
}

func NewImgur(cfg ImgurConfig) *Imgur {
	if cfg.URL == "" {
		cfg.URL = defaultImgurURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Imgur{clientID: cfg.ClientID, url: cfg.URL, httpClient: httpClient}
}

// IsPermanent reports whether source can be used as is.
func IsPermanent(source string) bool {
	return strings.HasPrefix(source, "http") && !strings.Contains(source, temporaryImageHost)
}

// Upload returns a permanent URL for source. Permanent http URLs come back
// unchanged; data URLs and temporary URLs are uploaded.
func (i *Imgur) Upload(ctx context.Context, source string) (string, error) {
	if IsPermanent(source) {
		return source, nil
	}

	var encoded string
	if strings.HasPrefix(source, "data:image") {
		_, data, ok := strings.Cut(source, ",")
		if !ok || data == "" {
			return "", fmt.Errorf("%w: empty data URL", ErrInvalidImage)
		}
		encoded = data
	} else if strings.HasPrefix(source, "http") {
		data, err := i.download(ctx, source)
		if err != nil {
			return "", err
		}
		encoded = base64.StdEncoding.EncodeToString(data)
	} else {
		return "", fmt.Errorf("%w: unsupported scheme", ErrInvalidImage)
	}

	return i.upload(ctx, encoded)
}

func (i *Imgur) download(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "image source", StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

type imgurResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

func (i *Imgur) upload(ctx context.Context, encoded string) (string, error) {
	payload, err := json.Marshal(map[string]string{"image": encoded})
	if err != nil {
		return "", fmt.Errorf("failed to marshal upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+i.clientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return "", fmt.Errorf("failed to read imgur response: %w", readErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("failed to close imgur response body: %w", closeErr)
	}

	if resp.StatusCode != http.StatusOK {
		if len(raw) > maxProviderBodyBytes {
			raw = raw[:maxProviderBodyBytes]
		}
		return "", &ProviderError{Provider: "imgur", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out imgurResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to parse imgur response: %w", err)
	}
	if out.Data.Link == "" {
		return "", fmt.Errorf("imgur response missing link")
	}
	return out.Data.Link, nil
}
