package server

import (
	"net/http"
	"strings"

	"snaptale/internal/app"
	"snaptale/pkg/domain"
)

// /api/pages/{id}/images: upload a photo or list the page's images.
func (s *Server) handlePageImages(w http.ResponseWriter, r *http.Request, user domain.User, pageID string) {
	switch r.Method {
	case http.MethodPost:
		s.handleUploadImage(w, r, user, pageID)
	case http.MethodGet:
		images, err := s.app.ListPageImages(user, pageID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": images,
			"count": len(images),
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request, user domain.User, pageID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes())
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo is required (field: photo)")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	img, err := s.app.UploadImage(r.Context(), user, pageID, contentType, file, header.Size)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

// /api/images/{id} or /api/images/{id}/transform
func (s *Server) handleImageByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/images/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 2 {
		if parts[1] == "transform" && r.Method == http.MethodPost {
			s.handleRequestTransform(w, r, user, id)
			return
		}
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	view, err := s.app.GetImage(r.Context(), user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRequestTransform(w http.ResponseWriter, r *http.Request, user domain.User, imageID string) {
	if !s.allow(s.transformLimiter, r) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	var req struct {
		Style          string   `json:"style"`
		CharacterRefs  []string `json:"characterRefs"`
		PromptAddendum string   `json:"promptAddendum"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	img, err := s.app.RequestTransform(r.Context(), user, imageID, app.TransformOptions{
		Style:          req.Style,
		CharacterRefs:  req.CharacterRefs,
		PromptAddendum: req.PromptAddendum,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, img)
}
