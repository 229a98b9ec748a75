package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/problem"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	maxBodyBytes = 1 << 20
)

// query collects typed query parameters and every rejection along the way,
// so a single 400 can name all bad parameters.
type query struct {
	values  url.Values
	invalid []problem.InvalidParam
}

func newQuery(r *http.Request) *query {
	return &query{values: r.URL.Query()}
}

func (q *query) reject(name, reason string) {
	q.invalid = append(q.invalid, problem.InvalidParam{Name: name, Reason: reason})
}

func (q *query) str(name string) string {
	return strings.TrimSpace(q.values.Get(name))
}

func (q *query) boolean(name string) bool {
	raw := q.str(name)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		q.reject(name, "must be a boolean")
		return false
	}
	return v
}

func (q *query) integer(name string, def int) int {
	raw := q.str(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.reject(name, "must be an integer")
		return def
	}
	return v
}

func (q *query) time(name string) *time.Time {
	raw := q.str(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		q.reject(name, "must be an RFC 3339 timestamp with a time zone")
		return nil
	}
	return &t
}

func (q *query) status(name string) facility.Status {
	v := facility.Status(q.str(name))
	switch v {
	case "", facility.StatusUp, facility.StatusDown, facility.StatusDegraded, facility.StatusUnknown:
		return v
	}
	q.reject(name, "must be one of up, down, degraded, unknown")
	return ""
}

func (q *query) page() facility.Page {
	offset := q.integer("offset", 0)
	if offset < 0 {
		q.reject("offset", "must be >= 0")
		offset = 0
	}
	limit := q.integer("limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		q.reject("limit", fmt.Sprintf("must be between 1 and %d", maxLimit))
		limit = defaultLimit
	}
	return facility.Page{Offset: offset, Limit: limit}
}

// ok writes a 400 naming every rejected parameter and reports false, or
// reports true when nothing was rejected.
func (q *query) ok(w http.ResponseWriter, r *http.Request) bool {
	if len(q.invalid) == 0 {
		return true
	}
	p := problem.New(r, http.StatusBadRequest, "Invalid query parameters")
	p.InvalidParams = q.invalid
	problem.Send(w, p)
	return false
}

// flat returns the single-valued query parameters as a generic mapping.
func (q *query) flat() map[string]any {
	out := make(map[string]any, len(q.values))
	for k, v := range q.values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// queryArgs decodes the query string into T. Parameter names are matched
// alias-insensitively, so showHidden and show_hidden both bind.
func queryArgs[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var out T
	if err := facility.DecodeArgs(newQuery(r).flat(), &out); err != nil {
		problem.Write(w, r, http.StatusBadRequest, err.Error())
		return out, false
	}
	return out, true
}

// bodyArgs decodes a JSON body into T alias-insensitively.
func bodyArgs[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var out T
	generic, err := readBody(r)
	if err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, err.Error())
		return out, false
	}
	if generic == nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, "request body is required")
		return out, false
	}
	if err := facility.DecodeArgs(generic, &out); err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, err.Error())
		return out, false
	}
	return out, true
}

// readBody decodes a JSON body generically, keeping numbers exact. An empty
// body yields nil.
func readBody(r *http.Request) (any, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return v, nil
}

// flatArgs turns a typed request into top-level command arguments.
func flatArgs(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return out, nil
}
