package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

const defaultMaxObjectBytes = 1 << 20

var (
	// ErrObjectNotFound is returned when the bucket or object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrObjectTooLarge is returned when an object exceeds the reader's size limit.
	ErrObjectTooLarge = errors.New("storage: object exceeds size limit")

	errInvalidURI = errors.New("storage: expected gs://bucket/object")
)

// Location addresses one Cloud Storage object.
type Location struct {
	Bucket string
	Object string
}

// String renders the location as a gs:// URI.
func (l Location) String() string {
	return "gs://" + l.Bucket + "/" + l.Object
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "gs://")
	if !ok {
		return Location{}, fmt.Errorf("%w: %q", errInvalidURI, uri)
	}
	bucket, object, _ := strings.Cut(rest, "/")
	bucket = strings.TrimSpace(bucket)
	object = strings.Trim(strings.TrimSpace(object), "/")
	if bucket == "" || object == "" {
		return Location{}, fmt.Errorf("%w: %q", errInvalidURI, uri)
	}
	return Location{Bucket: bucket, Object: object}, nil
}

// Reader downloads small configuration objects from Cloud Storage.
type Reader struct {
	client   *gcs.Client
	maxBytes int64
}

// ReaderOption customises reader behaviour.
type ReaderOption func(*Reader)

// WithMaxBytes overrides the per-object size limit (1 MiB by default).
func WithMaxBytes(limit int64) ReaderOption {
	return func(r *Reader) {
		if limit > 0 {
			r.maxBytes = limit
		}
	}
}

// NewReader constructs a Reader backed by the provided Cloud Storage client.
func NewReader(client *gcs.Client, opts ...ReaderOption) (*Reader, error) {
	if client == nil {
		return nil, errors.New("storage reader: client is required")
	}
	r := &Reader{client: client, maxBytes: defaultMaxObjectBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// ReadObject returns the full contents of the object at loc.
func (r *Reader) ReadObject(ctx context.Context, loc Location) ([]byte, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("storage reader: client is not initialised")
	}
	if loc.Bucket == "" || loc.Object == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidURI, loc.String())
	}

	obj, err := r.client.Bucket(loc.Bucket).Object(loc.Object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
		}
		return nil, fmt.Errorf("storage reader: open %s: %w", loc, err)
	}
	defer obj.Close()

	return readLimited(obj, r.maxBytes, loc)
}

func readLimited(src io.Reader, limit int64, loc Location) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, fmt.Errorf("storage reader: read %s: %w", loc, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrObjectTooLarge, loc)
	}
	return data, nil
}
