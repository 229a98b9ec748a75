// Package problem writes RFC 9457 problem documents.
package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

// ContentType is the media type of a problem document.
const ContentType = "application/problem+json"

// InvalidParam names one rejected request parameter.
type InvalidParam struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Problem is the RFC 9457 body.
type Problem struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Status        int            `json:"status"`
	Detail        string         `json:"detail"`
	Instance      string         `json:"instance"`
	InvalidParams []InvalidParam `json:"invalid_params,omitempty"`
}

var slugs = map[int]string{
	http.StatusBadRequest:            "invalid-parameter",
	http.StatusUnauthorized:          "unauthorized",
	http.StatusForbidden:             "forbidden",
	http.StatusNotFound:              "not-found",
	http.StatusMethodNotAllowed:      "method-not-allowed",
	http.StatusConflict:              "conflict",
	http.StatusRequestEntityTooLarge: "payload-too-large",
	http.StatusUnprocessableEntity:   "validation-error",
	http.StatusNotImplemented:        "not-implemented",
	http.StatusServiceUnavailable:    "unavailable",
}

// New builds a problem for r.
func New(r *http.Request, status int, detail string) Problem {
	slug, ok := slugs[status]
	if !ok {
		if status >= 500 {
			slug = "internal-error"
		} else {
			slug = "error"
		}
	}
	return Problem{
		Type:     BaseURL(r) + "/problems/" + slug,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance(r),
	}
}

// Write sends a problem with the given status and detail.
func Write(w http.ResponseWriter, r *http.Request, status int, detail string) {
	Send(w, New(r, status, detail))
}

// Send writes p, adding the bearer challenge on 401.
func Send(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", ContentType)
	if p.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p) //nolint:errcheck // client went away
}

// Status maps an error to its HTTP status.
func Status(err error) int {
	switch {
	case errors.Is(err, facility.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, facility.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, facility.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, facility.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, facility.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, facility.ErrTaskTerminal), errors.Is(err, facility.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error writes the problem matching err. Server errors hide err's text.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "An unexpected error occurred"
	}
	Write(w, r, status, detail)
}

func firstHeader(r *http.Request, name string) string {
	v := r.Header.Get(name)
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// BaseURL is the scheme and host the client used, honoring forwarding headers.
func BaseURL(r *http.Request) string {
	host := firstHeader(r, "X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	proto := firstHeader(r, "X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	return proto + "://" + host
}

func instance(r *http.Request) string {
	return BaseURL(r) + r.URL.RequestURI()
}
