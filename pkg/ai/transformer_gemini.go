package ai

import (
	"context"
	"encoding/base64"
	"fmt"
)

// GeminiTransformer adapts GeminiClient to the Transformer interface using
// an image-capable Gemini model.
type GeminiTransformer struct {
	client *GeminiClient
	model  string
}

func NewGeminiTransformer(client *GeminiClient, model string) *GeminiTransformer {
	return &GeminiTransformer{client: client, model: model}
}

func (t *GeminiTransformer) Transform(ctx context.Context, req TransformRequest) (TransformResult, error) {
	if len(req.Image) == 0 {
		return TransformResult{}, fmt.Errorf("source image required")
	}
	if len(req.CharacterRefs) > MaxCharacterRefs {
		return TransformResult{}, fmt.Errorf("at most %d character reference images allowed", MaxCharacterRefs)
	}
	images := make([]inlineImage, 0, len(req.CharacterRefs)+1)
	contentType := req.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	images = append(images, inlineImage{
		MimeType: contentType,
		Data:     base64.StdEncoding.EncodeToString(req.Image),
	})
	for _, ref := range req.CharacterRefs {
		images = append(images, inlineImage{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(ref),
		})
	}
	raw, mime, err := t.client.GenerateImage(ctx, t.model, buildStylePrompt(req), images)
	if err != nil {
		return TransformResult{}, err
	}
	return TransformResult{Image: raw, ContentType: mime}, nil
}
