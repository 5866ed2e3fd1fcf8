package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatTransformer calls an OpenAI-compatible /v1/images/edits
// endpoint to restyle a photo as a storybook illustration.
type OpenAICompatTransformer struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatTransformer builds an image Transformer.
// baseURL should include the /v1 prefix.
func NewOpenAICompatTransformer(baseURL, apiKey, model string) *OpenAICompatTransformer {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &OpenAICompatTransformer{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

// Transform implements Transformer using the images edits API. The source
// photo is the first image part; character references follow so the model
// can keep character appearance consistent.
func (t *OpenAICompatTransformer) Transform(ctx context.Context, req TransformRequest) (TransformResult, error) {
	if t.model == "" {
		return TransformResult{}, fmt.Errorf("image model required")
	}
	if len(req.Image) == 0 {
		return TransformResult{}, fmt.Errorf("source image required")
	}
	if len(req.CharacterRefs) > MaxCharacterRefs {
		return TransformResult{}, fmt.Errorf("at most %d character reference images allowed", MaxCharacterRefs)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeImagePart(w, "image[]", "source.png", req.Image); err != nil {
		return TransformResult{}, err
	}
	for i, ref := range req.CharacterRefs {
		if err := writeImagePart(w, "image[]", fmt.Sprintf("ref-%d.png", i+1), ref); err != nil {
			return TransformResult{}, err
		}
	}
	if err := w.WriteField("model", t.model); err != nil {
		return TransformResult{}, err
	}
	if err := w.WriteField("prompt", buildStylePrompt(req)); err != nil {
		return TransformResult{}, err
	}
	if err := w.Close(); err != nil {
		return TransformResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/images/edits", &buf)
	if err != nil {
		return TransformResult{}, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return TransformResult{}, fmt.Errorf("image edit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return TransformResult{}, fmt.Errorf("image api error: %s", errResp.Error.Message)
		}
		return TransformResult{}, fmt.Errorf("image api error: %s", resp.Status)
	}

	var imgResp oaiImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&imgResp); err != nil {
		return TransformResult{}, fmt.Errorf("image api decode: %w", err)
	}
	if len(imgResp.Data) == 0 || imgResp.Data[0].B64JSON == "" {
		return TransformResult{}, fmt.Errorf("empty response from image api")
	}
	raw, err := base64.StdEncoding.DecodeString(imgResp.Data[0].B64JSON)
	if err != nil {
		return TransformResult{}, fmt.Errorf("image api decode payload: %w", err)
	}
	return TransformResult{Image: raw, ContentType: "image/png"}, nil
}

func writeImagePart(w *multipart.Writer, field, filename string, data []byte) error {
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

func buildStylePrompt(req TransformRequest) string {
	style := strings.TrimSpace(req.Style)
	if style == "" {
		style = "warm children's storybook cartoon"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Redraw this photo as a %s illustration for a children's picture book. Keep the scene composition and subjects in place.", style)
	if len(req.CharacterRefs) > 0 {
		b.WriteString(" Match the characters' appearance to the reference images.")
	}
	if addendum := strings.TrimSpace(req.PromptAddendum); addendum != "" {
		b.WriteString(" ")
		b.WriteString(addendum)
	}
	return b.String()
}

type oaiImageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}
