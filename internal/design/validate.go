package design

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const imageCheckTimeout = 5 * time.Second

// PrintCheck collects blocking errors and advisory warnings about a print file.
type PrintCheck struct {
	Valid    bool     `json:"is_valid"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

var printExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// ValidatePrintImage checks that imageURL is reachable and usable by the
// fulfillment vendor. Only unreachable or local URLs are errors.
func ValidatePrintImage(ctx context.Context, client *http.Client, imageURL string) PrintCheck {
	check := PrintCheck{Valid: true, Warnings: []string{}, Errors: []string{}}

	if !reachable(ctx, client, imageURL) {
		check.Valid = false
		check.Errors = append(check.Errors, "image is not reachable from the server")
		return check
	}

	if isLocal(imageURL) {
		check.Valid = false
		check.Errors = append(check.Errors, "image URL must be public, not localhost")
	}

	if !strings.HasPrefix(imageURL, "https://") {
		check.Warnings = append(check.Warnings, "https URLs are recommended for print files")
	}

	for _, marker := range []string{temporaryImageHost, "blob:", "data:"} {
		if strings.Contains(imageURL, marker) {
			check.Warnings = append(check.Warnings, "image looks temporary ("+marker+"); upload it to permanent hosting")
		}
	}

	lower := strings.ToLower(imageURL)
	known := strings.Contains(lower, "imgur")
	for _, ext := range printExtensions {
		if strings.Contains(lower, ext) {
			known = true
			break
		}
	}
	if !known {
		check.Warnings = append(check.Warnings, "image format could not be determined; PNG or JPG recommended")
	}

	return check
}

func reachable(ctx context.Context, client *http.Client, imageURL string) bool {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, imageCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func isLocal(imageURL string) bool {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return true
	}
	host := parsed.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
