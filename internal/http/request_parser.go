// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"saldo/internal/core"
	"saldo/internal/report"
)

// maxBodyBytes bounds JSON and form bodies; uploads have their own limit.
const maxBodyBytes = 1 << 20

// RequestBodyParser reads a JSON object or a form-encoded body once and
// exposes its fields as strings.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]interface{}
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the body of r.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("%w: request body too large", core.ErrValidation)
	}
	return p
}

// Parse decodes the body as JSON when it looks like an object, as form
// values otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: malformed JSON body: %v", core.ErrValidation, err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = fmt.Errorf("%w: malformed form body: %v", core.ErrValidation, p.err)
	}
	return p.err
}

// Get returns a trimmed field value, or "" when absent.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
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

// sanitizeInput drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on", "x":
		return true
	}
	return false
}

// ParseDraft reads the editable fields of a transaction from the body.
func ParseDraft(p *RequestBodyParser) (core.Draft, error) {
	if err := p.Parse(); err != nil {
		return core.Draft{}, err
	}

	categoryID, err := strconv.ParseInt(p.Get("category_id"), 10, 64)
	if err != nil || categoryID <= 0 {
		return core.Draft{}, fmt.Errorf("%w: category_id must be a positive integer", core.ErrEmptyCategory)
	}
	date, err := core.ParseDate(p.Get("date"))
	if err != nil {
		return core.Draft{}, err
	}
	value, err := core.ParseAmount(p.Get("value"))
	if err != nil {
		return core.Draft{}, err
	}

	return core.Draft{
		CategoryID:  categoryID,
		Date:        date,
		Value:       value,
		Description: p.Get("description"),
		Planned:     parseBool(p.Get("planned")),
	}, nil
}

// ParseDateRange reads optional from/to query parameters.
func ParseDateRange(query url.Values) (from, to core.Date, err error) {
	if v := strings.TrimSpace(query.Get("from")); v != "" {
		if from, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, err
		}
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		if to, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, err
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return core.Date{}, core.Date{}, fmt.Errorf("%w: range ends before it starts", core.ErrValidation)
	}
	return from, to, nil
}

// ParseLedgerQuery reads period, from, to, category (comma separated ids)
// and q.
func ParseLedgerQuery(query url.Values) (report.Query, error) {
	period, err := core.ParsePeriod(query.Get("period"))
	if err != nil {
		return report.Query{}, err
	}
	from, to, err := ParseDateRange(query)
	if err != nil {
		return report.Query{}, err
	}

	var ids []int64
	for _, raw := range query["category"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return report.Query{}, fmt.Errorf("%w: invalid category id %q", core.ErrValidation, part)
			}
			ids = append(ids, id)
		}
	}

	return report.Query{
		Period:      period,
		From:        from,
		To:          to,
		CategoryIDs: ids,
		Text:        strings.TrimSpace(query.Get("q")),
	}, nil
}

// ParseLimit reads a positive limit, falling back to def and capping at ceiling.
func ParseLimit(query url.Values, def, ceiling int) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid limit %q", core.ErrValidation, v)
	}
	if n > ceiling {
		n = ceiling
	}
	return n, nil
}

// pathID reads a positive integer URL parameter. Malformed ids cannot name
// an existing row, so they are reported as not found.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s %q", core.ErrNotFound, name, raw)
	}
	return id, nil
}
