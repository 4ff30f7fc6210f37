// Package delivery holds helpers shared by the HTTP handlers.
package delivery

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "givetrack/internal/errors"
)

// QueryInt reads an integer query parameter. A missing parameter is 0.
func QueryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Validation(name + " must be an integer")
	}
	return v, nil
}

// QueryTime accepts RFC 3339 timestamps and plain dates (UTC midnight).
func QueryTime(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, errs.Validation(name + " must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
}
