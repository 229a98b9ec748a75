package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/problem"
)

// parser turns a request into the canonical arguments of one command. It
// writes the problem itself and reports false on rejection.
type parser func(s *Server, w http.ResponseWriter, r *http.Request) (map[string]any, bool)

type fsOp struct {
	command string
	method  string
	status  int
	parse   parser
}

type pathQuery struct {
	Path string `json:"path"`
}

func filesystemOps() []fsOp {
	return []fsOp{
		{"chmod", http.MethodPut, http.StatusOK, bodyOp[facility.ChmodRequest](nil)},
		{"chown", http.MethodPut, http.StatusOK, bodyOp[facility.ChownRequest](nil)},
		{"ls", http.MethodGet, http.StatusOK, queryOp[facility.LsRequest](nil)},
		{"head", http.MethodGet, http.StatusOK, queryOp(func(_ *Server, q facility.HeadRequest) error {
			return facility.ValidateWindow(q.FileBytes, q.Lines)
		})},
		{"tail", http.MethodGet, http.StatusOK, queryOp(func(_ *Server, q facility.TailRequest) error {
			return facility.ValidateWindow(q.FileBytes, q.Lines)
		})},
		{"view", http.MethodGet, http.StatusOK, queryOp(checkView)},
		{"checksum", http.MethodGet, http.StatusOK, queryOp[pathQuery](nil)},
		{"file", http.MethodGet, http.StatusOK, queryOp[pathQuery](nil)},
		{"stat", http.MethodGet, http.StatusOK, queryOp[facility.StatRequest](nil)},
		{"rm", http.MethodDelete, http.StatusNoContent, queryOp[pathQuery](nil)},
		{"mkdir", http.MethodPost, http.StatusCreated, bodyOp[facility.MkdirRequest](nil)},
		{"symlink", http.MethodPost, http.StatusCreated, bodyOp(func(_ *Server, req facility.SymlinkRequest) error {
			if req.LinkPath == "" {
				return fmt.Errorf("%w: link_path is required", facility.ErrInvalidArgument)
			}
			return nil
		})},
		{"download", http.MethodGet, http.StatusOK, queryOp[pathQuery](nil)},
		{"upload", http.MethodPost, http.StatusNoContent, uploadArgs},
		{"compress", http.MethodPost, http.StatusCreated, bodyOp(func(_ *Server, req facility.CompressRequest) error {
			return checkCompression(req.Compression)
		})},
		{"extract", http.MethodPost, http.StatusCreated, bodyOp(func(_ *Server, req facility.ExtractRequest) error {
			return checkCompression(req.Compression)
		})},
		{"mv", http.MethodPost, http.StatusCreated, bodyOp(checkTarget[facility.MoveRequest])},
		{"cp", http.MethodPost, http.StatusCreated, bodyOp(checkTarget[facility.CopyRequest])},
	}
}

func (s *Server) mountFilesystem(g *group) {
	for _, op := range filesystemOps() {
		g.protected(op.method, "/"+op.command+"/{resource_id}", s.fsSync(g, op))
		g.protected(op.method, "/async/"+op.command+"/{resource_id}", s.fsAsync(g, op))
	}
}

// fsSync runs the operation within the request.
func (s *Server) fsSync(g *group, op fsOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, res, ok := g.caller(w, r)
		if !ok {
			return
		}
		cmd, ok := s.command(w, r, g.sub, op.command, op.parse)
		if !ok {
			return
		}
		value, err := s.invoker.Invoke(r.Context(), res, u, cmd)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		switch {
		case op.command == "download":
			out, _ := value.(facility.Output)
			data, _ := out.Output.([]byte)
			w.Header().Set("Content-Type", "application/octet-stream")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data) //nolint:errcheck // client went away
		case op.status == http.StatusNoContent:
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, op.status, value)
		}
	}
}

// fsAsync submits the operation as a task and answers 202 with its location.
func (s *Server) fsAsync(g *group, op fsOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, res, ok := g.caller(w, r)
		if !ok {
			return
		}
		cmd, ok := s.command(w, r, g.sub, op.command, op.parse)
		if !ok {
			return
		}
		s.submit(w, r, u, res, cmd)
	}
}

// command parses the request and builds the canonical task command.
func (s *Server) command(w http.ResponseWriter, r *http.Request, sub facility.SubDomain, name string, parse parser) (facility.TaskCommand, bool) {
	args, ok := parse(s, w, r)
	if !ok {
		return facility.TaskCommand{}, false
	}
	cmd, err := facility.NewTaskCommand(sub, name, args)
	if err != nil {
		s.fail(w, r, err)
		return facility.TaskCommand{}, false
	}
	return cmd, true
}

// queryOp binds query parameters to T and stores them as flat arguments.
func queryOp[T any](check func(*Server, T) error) parser {
	return func(s *Server, w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
		v, ok := queryArgs[T](w, r)
		if !ok {
			return nil, false
		}
		args, err := flatArgs(v)
		if err == nil {
			err = requirePath(args)
		}
		if err == nil && check != nil {
			err = check(s, v)
		}
		if err != nil {
			s.fail(w, r, err)
			return nil, false
		}
		return args, true
	}
}

// bodyOp binds a JSON body to T and stores it under request_model.
func bodyOp[T any](check func(*Server, T) error) parser {
	return func(s *Server, w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
		v, ok := bodyArgs[T](w, r)
		if !ok {
			return nil, false
		}
		inner, err := flatArgs(v)
		if err == nil {
			err = requirePath(inner)
		}
		if err == nil && check != nil {
			err = check(s, v)
		}
		if err != nil {
			s.fail(w, r, err)
			return nil, false
		}
		return map[string]any{"request_model": inner}, true
	}
}

// uploadArgs reads the upload from a multipart "file" part, or the raw body
// for any other content type. The destination comes from the path query.
func uploadArgs(s *Server, w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	path := newQuery(r).str("path")
	if path == "" {
		problem.Write(w, r, http.StatusBadRequest, "path is required")
		return nil, false
	}
	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			problem.Write(w, r, http.StatusUnprocessableEntity, "multipart field \"file\" is required")
			return nil, false
		}
		defer func() {
			if cerr := file.Close(); cerr != nil {
				s.logger.Warn("close upload part", zap.Error(cerr))
			}
		}()
		src = file
	}
	content, err := io.ReadAll(io.LimitReader(src, s.opsLimit+1))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, "could not read upload")
		return nil, false
	}
	if int64(len(content)) > s.opsLimit {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, "File to upload is too large.")
		return nil, false
	}
	return map[string]any{"path": path, "content": content}, true
}

func requirePath(args map[string]any) error {
	if p, _ := args["path"].(string); strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: path is required", facility.ErrInvalidArgument)
	}
	return nil
}

func checkView(s *Server, req facility.ViewRequest) error {
	if req.Offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0", facility.ErrInvalidArgument)
	}
	if req.Size <= 0 || req.Size > s.opsLimit {
		return fmt.Errorf("%w: size must be between 1 and %d", facility.ErrInvalidArgument, s.opsLimit)
	}
	return nil
}

func checkCompression(c facility.CompressionType) error {
	if !c.Valid() {
		return fmt.Errorf("%w: unknown compression %q", facility.ErrInvalidArgument, c)
	}
	return nil
}

type targeted interface {
	facility.MoveRequest | facility.CopyRequest
}

func checkTarget[T targeted](_ *Server, req T) error {
	var target string
	switch v := any(req).(type) {
	case facility.MoveRequest:
		target = v.TargetPath
	case facility.CopyRequest:
		target = v.TargetPath
	}
	if target == "" {
		return fmt.Errorf("%w: target_path is required", facility.ErrInvalidArgument)
	}
	return nil
}
