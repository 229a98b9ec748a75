// Package auth implements the per-sub-domain bearer authentication gate.
package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/metrics"
	"github.com/JakeFAU/iri-facility-api/internal/problem"
)

var (
	// ErrMissingCredential reports a request without a bearer credential.
	ErrMissingCredential = errors.New("missing bearer credential")
	// ErrNoIdentity reports a resolver that returned an empty user id.
	ErrNoIdentity = errors.New("credential resolved to no identity")
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID     string
	Credential string
	PeerAddr   string
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached by the gate.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Credential extracts the bearer credential from the Authorization header.
// A bare token without the Bearer scheme is accepted as well.
func Credential(r *http.Request) string {
	fields := strings.Fields(r.Header.Get("Authorization"))
	switch {
	case len(fields) == 2 && strings.EqualFold(fields[0], "bearer"):
		return fields[1]
	case len(fields) == 1 && !strings.EqualFold(fields[0], "bearer"):
		return fields[0]
	default:
		return ""
	}
}

// PeerAddr returns the caller address, preferring proxy-supplied headers
// over the socket address.
func PeerAddr(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Resolve runs identity resolution and folds every failure into an error.
// It never panics even if the resolver does.
func Resolve(ctx context.Context, authn facility.Authenticator, credential, peer string) (userID string, err error) {
	if credential == "" {
		return "", ErrMissingCredential
	}
	defer func() {
		if rec := recover(); rec != nil {
			userID, err = "", errors.New("identity resolver panicked")
		}
	}()
	userID, err = authn.ResolveIdentity(ctx, credential, peer)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", ErrNoIdentity
	}
	return userID, nil
}

// Gate returns middleware that rejects requests whose credential does not
// resolve to an identity through authn. The internal cause is logged; the
// client always sees the same Unauthorized problem.
func Gate(sub facility.SubDomain, authn facility.Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := Credential(r)
			peer := PeerAddr(r)
			userID, err := Resolve(r.Context(), authn, credential, peer)
			if err != nil {
				logger.Warn("identity resolution failed",
					zap.String("subdomain", string(sub)),
					zap.String("peer", peer),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				metrics.ObserveAuthFailure(string(sub))
				problem.Write(w, r, http.StatusUnauthorized, "Unauthorized access")
				return
			}
			ctx := WithIdentity(r.Context(), Identity{UserID: userID, Credential: credential, PeerAddr: peer})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
