package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "storage client is required")
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	s := &BlobStore{bucket: "b", prefix: "iri"}
	require.Equal(t, "iri/tasks/t1/result.json", s.ObjectName("/tasks/t1/result.json"))
	s.prefix = ""
	require.Equal(t, "tasks/t1/result.json", s.ObjectName("tasks/t1/result.json"))
}

func TestParseURI(t *testing.T) {
	t.Parallel()

	bucket, name, err := ParseURI("gs://results/iri/tasks/t1/result.json")
	require.NoError(t, err)
	require.Equal(t, "results", bucket)
	require.Equal(t, "iri/tasks/t1/result.json", name)

	for _, bad := range []string{"file:///tmp/x", "gs://", "gs://bucket", "gs:///name"} {
		_, _, err := ParseURI(bad)
		require.ErrorIs(t, err, facility.ErrInvalidArgument, bad)
	}
}
