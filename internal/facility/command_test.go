package facility

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCanonicalKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"path":          "path",
		"sourcePath":    "path",
		"source_path":   "path",
		"targetPath":    "target_path",
		"target_path":   "target_path",
		"TargetPath":    "target_path",
		"showHidden":    "show_hidden",
		"show_hidden":   "show_hidden",
		"bytes":         "file_bytes",
		"fileBytes":     "file_bytes",
		"requestModel":  "request_model",
		"request_model": "request_model",
		"numeric-uid":   "numeric_uid",
	}
	for in, want := range tests {
		require.Equal(t, want, CanonicalKey(in), in)
	}
}

func TestCanonicalizeFlattensRequestStructs(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize(map[string]any{
		"requestModel": CompressRequest{
			Path:        "src",
			TargetPath:  "out.tar.gz",
			Compression: CompressionGzip,
		},
	})
	require.NoError(t, err)

	want := map[string]any{
		"request_model": map[string]any{
			"path":        "src",
			"target_path": "out.tar.gz",
			"dereference": false,
			"compression": "gzip",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("canonical args mismatch (-want +got):\n%s", diff)
	}
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	lines := int64(3)
	inputs := []map[string]any{
		{"path": "t1", "showHidden": true, "recursive": false},
		{"sourcePath": "a.txt", "lines": &lines, "skip_trailing": true},
		{"request_model": MkdirRequest{Path: "t1", Parent: true}},
		{"job_spec": JobSpec{Executable: "/bin/hostname", Environment: map[string]string{"OMP_NUM_THREADS": "4"}}},
		{},
	}
	for _, in := range inputs {
		once, err := Canonicalize(in)
		require.NoError(t, err)
		twice, err := Canonicalize(once)
		require.NoError(t, err)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("canonicalize not idempotent (-once +twice):\n%s", diff)
		}
	}
}

func TestCanonicalizeIsAliasInsensitive(t *testing.T) {
	t.Parallel()

	a, err := Canonicalize(map[string]any{"sourcePath": "f", "targetPath": "g"})
	require.NoError(t, err)
	b, err := Canonicalize(map[string]any{"path": "f", "target_path": "g"})
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(a, b))

	nestedAlias, err := Canonicalize(map[string]any{
		"requestModel": map[string]any{"sourcePath": "f", "targetPath": "g"},
	})
	require.NoError(t, err)
	nestedPlain, err := Canonicalize(map[string]any{
		"request_model": map[string]any{"path": "f", "target_path": "g"},
	})
	require.NoError(t, err)
	if diff := cmp.Diff(nestedPlain, nestedAlias); diff != "" {
		t.Fatalf("nested aliases not canonicalized (-plain +alias):\n%s", diff)
	}

	nodes := 2
	fromStruct, err := Canonicalize(map[string]any{
		"jobSpec": JobSpec{Executable: "a.out", Resources: &ResourceSpec{NodeCount: &nodes}},
	})
	require.NoError(t, err)
	fromMap, err := Canonicalize(map[string]any{
		"job_spec": map[string]any{"executable": "a.out", "resources": map[string]any{"nodeCount": 2}},
	})
	require.NoError(t, err)
	if diff := cmp.Diff(fromStruct, fromMap); diff != "" {
		t.Fatalf("job spec map and struct differ (-struct +map):\n%s", diff)
	}
}

func TestCanonicalizeKeepsFreeFormMaps(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize(map[string]any{
		"job_spec": JobSpec{Executable: "a.out", Environment: map[string]string{"MY_VAR": "x"}},
	})
	require.NoError(t, err)
	spec := got["job_spec"].(map[string]any)
	require.Equal(t, map[string]any{"MY_VAR": "x"}, spec["environment"])

	got, err = Canonicalize(map[string]any{
		"jobSpec": map[string]any{
			"executable":  "a.out",
			"environment": map[string]any{"OMP_NUM_THREADS": "4"},
			"attributes": map[string]any{
				"queueName":         "debug",
				"custom_attributes": map[string]any{"billingCode": "x1"},
			},
		},
	})
	require.NoError(t, err)
	spec = got["job_spec"].(map[string]any)
	require.Equal(t, map[string]any{"OMP_NUM_THREADS": "4"}, spec["environment"])
	attrs := spec["attributes"].(map[string]any)
	require.Equal(t, "debug", attrs["queue_name"])
	require.Equal(t, map[string]any{"billingCode": "x1"}, attrs["custom_attributes"])
}

func TestCanonicalizeRejectsCollidingAliases(t *testing.T) {
	t.Parallel()

	_, err := Canonicalize(map[string]any{"path": "a", "sourcePath": "b"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCanonicalizeSurvivesJSONStorage(t *testing.T) {
	t.Parallel()

	cmd, err := NewTaskCommand(SubDomainFilesystem, "view", map[string]any{"path": "f", "size": 10, "offset": 2})
	require.NoError(t, err)

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	var stored TaskCommand
	require.NoError(t, json.Unmarshal(data, &stored))
	replayed, err := stored.Canonical()
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(cmd, replayed))
}

func TestParseTaskCommandKeepsNumbers(t *testing.T) {
	t.Parallel()

	cmd, err := NewTaskCommand(SubDomainFilesystem, "head", map[string]any{"path": "f", "lines": 3})
	require.NoError(t, err)
	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	parsed, err := ParseTaskCommand(data)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(cmd, parsed))
	require.Equal(t, json.Number("3"), parsed.Args["lines"])

	empty, err := ParseTaskCommand([]byte(`{"router":"compute","command":"get_jobs"}`))
	require.NoError(t, err)
	require.NotNil(t, empty.Args)

	_, err = ParseTaskCommand([]byte(`{`))
	require.Error(t, err)
}

func TestDecodeArgsReconstructsRequests(t *testing.T) {
	t.Parallel()

	args, err := Canonicalize(map[string]any{
		"request_model": UploadRequest{Path: "up.bin", Content: []byte{0, 1, 2}},
	})
	require.NoError(t, err)

	var out struct {
		Request UploadRequest `json:"request_model"`
	}
	require.NoError(t, DecodeArgs(args, &out))
	require.Equal(t, "up.bin", out.Request.Path)
	require.Equal(t, []byte{0, 1, 2}, out.Request.Content)
}

func TestDecodeArgsAcceptsAliasesAndNumbers(t *testing.T) {
	t.Parallel()

	var req ViewRequest
	err := DecodeArgs(map[string]any{"sourcePath": "f", "size": json.Number("64"), "offset": "8"}, &req)
	require.NoError(t, err)
	require.Equal(t, ViewRequest{Path: "f", Size: 64, Offset: 8}, req)
}

func TestDecodeArgsRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	var req MkdirRequest
	err := DecodeArgs(map[string]any{"path": "t1", "mode": "0755"}, &req)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
