package catalog

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/wantinglittle/patches/internal/platform/firestore"
)

type clientProvider interface {
	Client(ctx context.Context) (*firestore.Client, error)
}

// FirestoreSource reads packages from a Firestore collection. The document id is the package id.
type FirestoreSource struct {
	provider clientProvider
}

// NewFirestoreSource constructs a DocumentSource backed by provider.
func NewFirestoreSource(provider *pfirestore.Provider) *FirestoreSource {
	return &FirestoreSource{provider: provider}
}

type packageDocument struct {
	Name      string                      `firestore:"name"`
	BasePrice int64                       `firestore:"basePrice"`
	Options   map[string]map[string]int64 `firestore:"options"`
	Required  []string                    `firestore:"required"`
	Display   map[string]displayDocument  `firestore:"display"`
}

type displayDocument struct {
	MetadataKey string            `firestore:"metadataKey"`
	Labels      map[string]string `firestore:"labels"`
	Fallback    string            `firestore:"fallback"`
}

func (d packageDocument) definition(id string) PackageDefinition {
	def := PackageDefinition{
		ID:             id,
		DisplayName:    d.Name,
		BasePrice:      d.BasePrice,
		OptionGroups:   d.Options,
		RequiredGroups: d.Required,
	}
	if len(d.Display) > 0 {
		def.Display = make(map[string]DisplayGroup, len(d.Display))
		for group, display := range d.Display {
			def.Display[group] = DisplayGroup(display)
		}
	}
	return def
}

// Packages implements DocumentSource. The version is the collection name plus the most
// recent document update time.
func (s *FirestoreSource) Packages(ctx context.Context, collection string) (string, []PackageDefinition, error) {
	if s == nil || s.provider == nil {
		return "", nil, errors.New("catalog: firestore provider is required")
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return "", nil, err
	}

	iter := client.Collection(collection).Documents(ctx)
	defer iter.Stop()

	var (
		defs    []PackageDefinition
		updated time.Time
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", nil, pfirestore.WrapError("catalog.packages", err)
		}
		var doc packageDocument
		if err := snap.DataTo(&doc); err != nil {
			return "", nil, pfirestore.WrapError("catalog.decode."+snap.Ref.ID, err)
		}
		defs = append(defs, doc.definition(snap.Ref.ID))
		if snap.UpdateTime.After(updated) {
			updated = snap.UpdateTime
		}
	}

	version := collection
	if !updated.IsZero() {
		version += "@" + updated.UTC().Format(time.RFC3339)
	}
	return version, defs, nil
}
