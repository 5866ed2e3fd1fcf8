package server

import (
	"net/http"

	"snaptale/internal/app"
	"snaptale/pkg/domain"
)

func (s *Server) handleStorySuggest(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.storyLimiter, r) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	var req struct {
		ImageDescription string `json:"imageDescription"`
		PageNumber       int    `json:"pageNumber"`
		TotalPages       int    `json:"totalPages"`
		LocationName     string `json:"locationName"`
		BookTitle        string `json:"bookTitle"`
		PreviousPageText string `json:"previousPageText"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	suggestion, err := s.app.SuggestStoryText(r.Context(), app.StoryInput{
		ImageDescription: req.ImageDescription,
		PageNumber:       req.PageNumber,
		TotalPages:       req.TotalPages,
		LocationName:     req.LocationName,
		BookTitle:        req.BookTitle,
		PreviousPageText: req.PreviousPageText,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"suggestion": suggestion})
}
