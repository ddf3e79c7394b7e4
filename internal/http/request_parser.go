// Package http provides the JSON API over forecasts and transactions.
//
// This file implements parsing and validation of query parameters and
// request bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/services"
)

const maxBodyBytes = 1 << 20

// ErrInvalidParam marks a query parameter that failed validation.
var ErrInvalidParam = errors.New("invalid parameter")

// ForecastParams holds the validated forecast query parameters.
type ForecastParams struct {
	Kind    core.TransactionKind
	Method  forecast.Method
	Months  int
	Horizon int
}

// Request converts the params to a service request.
func (p ForecastParams) Request() services.ForecastRequest {
	return services.ForecastRequest{
		Kind:    p.Kind,
		Method:  p.Method,
		Months:  p.Months,
		Horizon: p.Horizon,
	}
}

// ParseKind reads the required "type" parameter.
func ParseKind(query url.Values) (core.TransactionKind, error) {
	v := strings.TrimSpace(query.Get("type"))
	if v == "" {
		return "", fmt.Errorf("%w: type is required (income or expense)", ErrInvalidParam)
	}
	kind, err := core.ParseTransactionKind(v)
	if err != nil {
		return "", fmt.Errorf("%w: type must be income or expense", ErrInvalidParam)
	}
	return kind, nil
}

// ParseForecastParams validates method, months and horizon, filling
// missing values from defaults. The kind is parsed only when requireKind
// is set.
func ParseForecastParams(query url.Values, defaults services.ForecastConfig, requireKind bool) (ForecastParams, error) {
	var params ForecastParams

	if requireKind {
		kind, err := ParseKind(query)
		if err != nil {
			return params, err
		}
		params.Kind = kind
	}

	params.Method = defaults.Method
	if v := strings.TrimSpace(query.Get("method")); v != "" {
		m, err := forecast.ParseMethod(v)
		if err != nil {
			return params, fmt.Errorf("%w: unknown method %q", ErrInvalidParam, v)
		}
		params.Method = m
	}

	months, err := parseBoundedInt(query, "months", defaults.LookbackMonths, config.MinLookbackMonths, config.MaxLookbackMonths)
	if err != nil {
		return params, err
	}
	params.Months = months

	horizon, err := parseBoundedInt(query, "horizon", defaults.Horizon, config.MinHorizon, config.MaxHorizon)
	if err != nil {
		return params, err
	}
	params.Horizon = horizon

	return params, nil
}

// ParseMonths validates the optional "months" parameter.
func ParseMonths(query url.Values, def int) (int, error) {
	return parseBoundedInt(query, "months", def, config.MinLookbackMonths, config.MaxLookbackMonths)
}

func parseBoundedInt(query url.Values, name string, def, lo, hi int) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s must be an integer between %d and %d", ErrInvalidParam, name, lo, hi)
	}
	return n, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once, up to 1 MiB.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseTransaction builds a transaction from a parsed body. The date
// (YYYY-MM-DD) defaults to today.
func ParseTransaction(p *RequestBodyParser, now time.Time) (core.Transaction, error) {
	kind, err := core.ParseTransactionKind(p.Get("type"))
	if err != nil {
		return core.Transaction{}, err
	}

	date := core.NewDate(now.Year(), int(now.Month()), now.Day())
	if v := p.Get("date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", v)
		}
		date = d
	}

	cents, err := core.ParseDecimalToCents(p.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{
		Date:        date,
		Kind:        kind,
		Description: p.Get("description"),
		Amount:      core.Money{Cents: cents},
		Primary:     p.Get("primary"),
		Secondary:   p.Get("secondary"),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return core.Date{}, err
	}
	return core.Date{Time: t}, nil
}

// sanitizeInput removes control characters other than tab and newlines
// and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
