package icons

import (
	"context"
	"embed"
)

//go:embed assets/*.svg
var assetFS embed.FS

// Static serves the embedded default icon set.
type Static struct{}

func NewStatic() *Static {
	return &Static{}
}

func (s *Static) Resolve(_ context.Context, ref Ref) (Icon, error) {
	entry, ok := lookupKnown(ref)
	if !ok {
		return Icon{}, notFound(ref)
	}
	image, err := assetFS.ReadFile("assets/" + ref.objectName())
	if err != nil {
		return Icon{}, notFound(ref)
	}
	return Icon{Ref: ref, DisplayName: entry.DisplayName, ContentType: "image/svg+xml", Image: image}, nil
}

func (s *Static) List(_ context.Context) ([]Entry, error) {
	return append([]Entry(nil), known...), nil
}
