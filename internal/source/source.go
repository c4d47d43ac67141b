// Package source opens statement files by name, either from local disk or
// from Google Cloud Storage (gs://bucket/object).
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// Opener opens a named statement source for reading.
type Opener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// LocalOpener reads sources from the local filesystem.
type LocalOpener struct{}

// Open opens a local file.
func (LocalOpener) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open file %q: %w", name, err)
	}
	return f, nil
}

// GCSOpener reads gs:// sources through a caller-owned storage client.
// The caller creates the client and closes it when the run is over.
type GCSOpener struct {
	client *storage.Client
}

// NewGCSOpener wraps an existing storage client.
func NewGCSOpener(client *storage.Client) *GCSOpener {
	return &GCSOpener{client: client}
}

// Open starts reading the object behind a gs:// URI.
func (o *GCSOpener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	bucket, object, err := SplitGCSURI(name)
	if err != nil {
		return nil, err
	}
	rc, err := o.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object %s/%s: %w", bucket, object, err)
	}
	return rc, nil
}

// Mux dispatches gs:// names to a GCS opener and everything else to a local
// opener. A nil GCS opener rejects gs:// names.
type Mux struct {
	Local Opener
	GCS   Opener
}

// Open opens name with the opener matching its scheme.
func (m Mux) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if IsGCS(name) {
		if m.GCS == nil {
			return nil, fmt.Errorf("open %q: no GCS client configured", name)
		}
		return m.GCS.Open(ctx, name)
	}
	local := m.Local
	if local == nil {
		local = LocalOpener{}
	}
	return local.Open(ctx, name)
}

// IsGCS reports whether name is a gs:// URI.
func IsGCS(name string) bool {
	return strings.HasPrefix(name, gcsScheme)
}

// SplitGCSURI splits "gs://bucket/path/to/file.csv" into bucket and object.
func SplitGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCS(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// BaseName returns the file name part of a local path or gs:// URI.
func BaseName(name string) string {
	if IsGCS(name) {
		return path.Base(strings.TrimPrefix(name, gcsScheme))
	}
	return path.Base(strings.ReplaceAll(name, `\`, "/"))
}
