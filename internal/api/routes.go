package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

const openAPIVersion = "3.1.0"

type routeMeta struct {
	tag       string
	hidden    bool
	protected bool
}

// Route is one sub-domain endpoint as registered on the router.
type Route struct {
	Method    string `json:"method" yaml:"method"`
	Path      string `json:"path" yaml:"path"`
	Tag       string `json:"tag" yaml:"tag"`
	Protected bool   `json:"protected" yaml:"protected"`
	Hidden    bool   `json:"hidden" yaml:"hidden"`
}

// Routes lists the sub-domain endpoints mounted on the router, sorted by path
// and method. Hidden routes are only included when includeHidden is set.
func (s *Server) Routes(includeHidden bool) []Route {
	var out []Route
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		meta, ok := s.meta[method+" "+route]
		if !ok || (meta.hidden && !includeHidden) {
			return nil
		}
		out = append(out, Route{
			Method:    method,
			Path:      route,
			Tag:       meta.tag,
			Protected: meta.protected,
			Hidden:    meta.hidden,
		})
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Document is the OpenAPI discovery document.
type Document struct {
	OpenAPI    string                          `json:"openapi" yaml:"openapi"`
	Info       Info                            `json:"info" yaml:"info"`
	Servers    []ServerURL                     `json:"servers,omitempty" yaml:"servers,omitempty"`
	Tags       []Tag                           `json:"tags" yaml:"tags"`
	Paths      map[string]map[string]Operation `json:"paths" yaml:"paths"`
	Components Components                      `json:"components" yaml:"components"`
}

// Info is the document's info object.
type Info struct {
	Title   string `json:"title" yaml:"title"`
	Version string `json:"version" yaml:"version"`
}

// ServerURL is one entry of the servers list.
type ServerURL struct {
	URL string `json:"url" yaml:"url"`
}

// Tag groups operations by sub-domain.
type Tag struct {
	Name string `json:"name" yaml:"name"`
}

// Operation describes one method on a path.
type Operation struct {
	OperationID string                `json:"operationId" yaml:"operationId"`
	Tags        []string              `json:"tags" yaml:"tags"`
	Security    []map[string][]string `json:"security,omitempty" yaml:"security,omitempty"`
}

// Components holds the shared security scheme.
type Components struct {
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes" yaml:"securitySchemes"`
}

// SecurityScheme is an OpenAPI security scheme object.
type SecurityScheme struct {
	Type   string `json:"type" yaml:"type"`
	Scheme string `json:"scheme" yaml:"scheme"`
}

const bearerScheme = "bearer"

// Document builds the discovery document. Paths are relative to the base
// path, which is listed as the only server.
func (s *Server) Document(includeHidden bool) Document {
	doc := Document{
		OpenAPI: openAPIVersion,
		Info:    Info{Title: s.title, Version: s.version},
		Paths:   make(map[string]map[string]Operation),
		Components: Components{SecuritySchemes: map[string]SecurityScheme{
			bearerScheme: {Type: "http", Scheme: "bearer"},
		}},
	}
	if s.basePath != "" {
		doc.Servers = []ServerURL{{URL: s.basePath}}
	}
	seen := make(map[string]bool)
	for _, rt := range s.Routes(includeHidden) {
		path := strings.TrimPrefix(rt.Path, s.basePath)
		op := Operation{
			OperationID: operationID(rt.Method, path),
			Tags:        []string{rt.Tag},
		}
		if rt.Protected {
			op.Security = []map[string][]string{{bearerScheme: {}}}
		}
		if doc.Paths[path] == nil {
			doc.Paths[path] = make(map[string]Operation)
		}
		doc.Paths[path][strings.ToLower(rt.Method)] = op
		if !seen[rt.Tag] {
			seen[rt.Tag] = true
			doc.Tags = append(doc.Tags, Tag{Name: rt.Tag})
		}
	}
	sort.Slice(doc.Tags, func(i, j int) bool { return doc.Tags[i].Name < doc.Tags[j].Name })
	return doc
}

// operationID derives a stable id such as get_status_resources_by_id.
func operationID(method, path string) string {
	parts := []string{strings.ToLower(method)}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") {
			seg = "by_" + strings.Trim(seg, "{}")
		}
		parts = append(parts, strings.ReplaceAll(seg, "-", "_"))
	}
	return strings.Join(parts, "_")
}

func (s *Server) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Document(false))
}
