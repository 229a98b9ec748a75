package facility

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
)

// TaskCommand is a replayable description of a deferred operation.
type TaskCommand struct {
	Router  string         `json:"router"`
	Command string         `json:"command"`
	Args    map[string]any `json:"args"`
}

// NewTaskCommand builds a command with canonical arguments.
func NewTaskCommand(router SubDomain, command string, args map[string]any) (TaskCommand, error) {
	canonical, err := Canonicalize(args)
	if err != nil {
		return TaskCommand{}, fmt.Errorf("canonicalize %s:%s args: %w", router, command, err)
	}
	return TaskCommand{Router: string(router), Command: command, Args: canonical}, nil
}

// Canonical returns a copy of c with canonical arguments.
func (c TaskCommand) Canonical() (TaskCommand, error) {
	return NewTaskCommand(SubDomain(c.Router), c.Command, c.Args)
}

// ParseTaskCommand decodes a stored command, keeping numbers as
// json.Number so it compares equal to the command that was written.
func ParseTaskCommand(data []byte) (TaskCommand, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var c TaskCommand
	if err := dec.Decode(&c); err != nil {
		return TaskCommand{}, fmt.Errorf("decode task command: %w", err)
	}
	if c.Args == nil {
		c.Args = map[string]any{}
	}
	return c, nil
}

// keyAliases maps normalized spellings to the canonical argument name.
var keyAliases = map[string]string{
	"sourcepath":   "path",
	"source":       "path",
	"bytes":        "file_bytes",
	"targetpath":   "target_path",
	"linkpath":     "link_path",
	"matchpattern": "match_pattern",
	"requestmodel": "request_model",
	"request":      "request_model",
	"jobspec":      "job_spec",
	"jobid":        "job_id",
}

func normalizeKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		if r == '_' || r == '-' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// CanonicalKey maps any accepted spelling of an argument name to its
// canonical snake_case form.
func CanonicalKey(k string) string {
	if alias, ok := keyAliases[normalizeKey(k)]; ok {
		return alias
	}
	return snakeCase(k)
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r == '-' {
			b.WriteByte('_')
			continue
		}
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MatchFieldName is a mapstructure MatchName that ignores case, separators
// and known aliases.
func MatchFieldName(mapKey, fieldName string) bool {
	return CanonicalKey(mapKey) == CanonicalKey(fieldName)
}

// Canonicalize rewrites top-level keys to their canonical names and flattens
// structured request values into plain JSON-shaped maps using each struct's
// canonical field names. Keys inside request objects are canonicalized too,
// except under free-form fields such as job environments and custom
// attributes. Numbers become json.Number so the result survives storage
// unchanged. Canonicalize is idempotent.
func Canonicalize(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	origin := make(map[string]string, len(args))
	for k, v := range args {
		key := CanonicalKey(k)
		if prev, dup := origin[key]; dup {
			return nil, fmt.Errorf("%w: arguments %q and %q both map to %q", ErrInvalidArgument, prev, k, key)
		}
		origin[key] = k
		out[key] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%w: encode arguments: %v", ErrInvalidArgument, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var flat map[string]any
	if err := dec.Decode(&flat); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if flat == nil {
		flat = map[string]any{}
	}
	for _, key := range requestObjectKeys {
		v, ok := flat[key]
		if !ok {
			continue
		}
		if flat[key], err = canonicalizeNested(key, v); err != nil {
			return nil, err
		}
	}
	return flat, nil
}

// requestObjectKeys name the arguments that carry request objects.
var requestObjectKeys = []string{"request_model", "job_spec"}

// freeFormKeys hold user-chosen keys that must survive as written.
var freeFormKeys = map[string]bool{
	"environment":       true,
	"custom_attributes": true,
}

func canonicalizeNested(path string, v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		origin := make(map[string]string, len(val))
		for k, child := range val {
			key := CanonicalKey(k)
			if prev, dup := origin[key]; dup {
				return nil, fmt.Errorf("%w: %s fields %q and %q both map to %q", ErrInvalidArgument, path, prev, k, key)
			}
			origin[key] = k
			if freeFormKeys[key] {
				out[key] = child
				continue
			}
			c, err := canonicalizeNested(path+"."+key, child)
			if err != nil {
				return nil, err
			}
			out[key] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			c, err := canonicalizeNested(fmt.Sprintf("%s[%d]", path, i), child)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	default:
		return v, nil
	}
}

// DecodeArgs reconstructs a typed value from a canonical argument mapping or
// a generically decoded request body. Keys are matched alias-insensitively
// against json tags; keys with no matching field are an error.
func DecodeArgs(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		MatchName:        MatchFieldName,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			base64BytesHook,
			mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
		),
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

var bytesType = reflect.TypeOf([]byte(nil))

// base64BytesHook decodes the base64 text encoding/json produces for []byte.
func base64BytesHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != bytesType {
		return data, nil
	}
	raw, err := base64.StdEncoding.DecodeString(data.(string))
	if err != nil {
		return nil, fmt.Errorf("decode base64 content: %w", err)
	}
	return raw, nil
}
