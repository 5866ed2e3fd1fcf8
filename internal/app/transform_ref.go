package app

import (
	"encoding/json"
	"strings"
)

// transformRef is the payload carried in a transform job's refID. The
// character reference keys are not included; the worker reads them from
// the book record so it always uses the latest set.
type transformRef struct {
	ImageID        string `json:"imageId"`
	Style          string `json:"style,omitempty"`
	PromptAddendum string `json:"promptAddendum,omitempty"`
}

func encodeTransformRef(imageID string, opts TransformOptions) string {
	data, err := json.Marshal(transformRef{
		ImageID:        imageID,
		Style:          opts.Style,
		PromptAddendum: opts.PromptAddendum,
	})
	if err != nil {
		return imageID
	}
	return string(data)
}

func decodeTransformRef(refID string) (string, TransformOptions) {
	if !strings.HasPrefix(refID, "{") {
		return refID, TransformOptions{}
	}
	var ref transformRef
	if err := json.Unmarshal([]byte(refID), &ref); err != nil || ref.ImageID == "" {
		return refID, TransformOptions{}
	}
	return ref.ImageID, TransformOptions{Style: ref.Style, PromptAddendum: ref.PromptAddendum}
}
