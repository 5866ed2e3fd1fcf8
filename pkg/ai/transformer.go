package ai

import "context"

// MaxCharacterRefs bounds how many character reference images may be sent
// with one transform request.
const MaxCharacterRefs = 5

// TransformRequest carries a source photo and stylization options.
type TransformRequest struct {
	// Image is the source photo bytes.
	Image []byte
	// ContentType of the source photo, e.g. "image/jpeg".
	ContentType string
	// Style is a named illustration preset, e.g. "watercolor", "cartoon".
	Style string
	// CharacterRefs holds up to MaxCharacterRefs reference images used to
	// keep character appearance consistent across pages.
	CharacterRefs [][]byte
	// PromptAddendum is free text appended to the style prompt.
	PromptAddendum string
}

// TransformResult is a stylized illustration produced by a provider.
type TransformResult struct {
	Image       []byte
	ContentType string
}

// Transformer turns a photo into a stylized illustration while preserving
// scene composition. Providers are swappable behind this interface.
type Transformer interface {
	Transform(ctx context.Context, req TransformRequest) (TransformResult, error)
}
