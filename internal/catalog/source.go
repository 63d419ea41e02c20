package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wantinglittle/patches/internal/platform/storage"
)

const (
	sourceEmbedded    = "embedded"
	schemeGCS         = "gs://"
	schemeFirestore   = "firestore://"
	maxLocalFileBytes = 1 << 20
)

// ObjectReader fetches a catalog document from object storage.
type ObjectReader interface {
	ReadObject(ctx context.Context, loc storage.Location) ([]byte, error)
}

// DocumentSource lists the packages stored in a document collection together with a
// revision label for the collection.
type DocumentSource interface {
	Packages(ctx context.Context, collection string) (version string, defs []PackageDefinition, err error)
}

// Sources carries the backends Load may need. Either may be nil when the configured
// source does not use it.
type Sources struct {
	Objects   ObjectReader
	Documents DocumentSource
}

// Load builds the process catalog from source:
//
//	""/"embedded"            the compiled-in default
//	gs://bucket/object.yaml   a Cloud Storage object
//	firestore://collection    one document per package
//	anything else             a local yaml, toml or json file
func Load(ctx context.Context, source string, src Sources) (*Catalog, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "" || source == sourceEmbedded:
		return Default()
	case strings.HasPrefix(source, schemeGCS):
		return loadObject(ctx, source, src.Objects)
	case strings.HasPrefix(source, schemeFirestore):
		return loadCollection(ctx, source, src.Documents)
	default:
		return LoadFile(source)
	}
}

// LoadFile decodes a local catalog file, inferring the format from its extension.
func LoadFile(path string) (*Catalog, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if info.Size() > maxLocalFileBytes {
		return nil, fmt.Errorf("catalog: %s is larger than %d bytes", path, maxLocalFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return Decode(data, format)
}

func loadObject(ctx context.Context, source string, objects ObjectReader) (*Catalog, error) {
	if objects == nil {
		return nil, errors.New("catalog: no object storage reader configured for " + source)
	}
	loc, err := storage.ParseURI(source)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	format, err := FormatFromPath(loc.Object)
	if err != nil {
		return nil, err
	}
	data, err := objects.ReadObject(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", loc, err)
	}
	return Decode(data, format)
}

func loadCollection(ctx context.Context, source string, docs DocumentSource) (*Catalog, error) {
	if docs == nil {
		return nil, errors.New("catalog: no document source configured for " + source)
	}
	collection := strings.Trim(strings.TrimPrefix(source, schemeFirestore), "/")
	if collection == "" {
		return nil, fmt.Errorf("catalog: missing collection in %q", source)
	}
	version, defs, err := docs.Packages(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", source, err)
	}
	return New(version, defs...)
}
