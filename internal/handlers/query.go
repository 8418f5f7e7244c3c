package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sifrokapp/sifrok/internal/services"
)

// queryTime parses an RFC 3339 timestamp or a YYYY-MM-DD date. A bare date
// used as an upper bound covers the whole day.
func queryTime(r *http.Request, name string, upperBound bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, services.UserError{Message: fmt.Sprintf("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name)}
	}
	if upperBound {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.UserError{Message: fmt.Sprintf("%s must be an integer", name)}
	}
	return n, nil
}

func queryInt64(r *http.Request, name string) (int64, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, services.UserError{Message: fmt.Sprintf("%s must be an integer", name)}
	}
	return n, true, nil
}

// queryList splits comma separated and repeated values.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, value := range r.URL.Query()[name] {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
