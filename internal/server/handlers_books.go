package server

import (
	"net/http"
	"strings"

	"snaptale/internal/app"
	"snaptale/pkg/domain"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateBook(w, r, user)
	case http.MethodGet:
		books, err := s.app.ListBooks(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": books,
			"count": len(books),
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Title       string             `json:"title"`
		PageCount   int                `json:"pageCount"`
		Cover       domain.CoverDesign `json:"cover"`
		PrintFormat string             `json:"printFormat"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	book, err := s.app.CreateBook(user, app.CreateBookInput{
		Title:       req.Title,
		PageCount:   req.PageCount,
		Cover:       req.Cover,
		PrintFormat: req.PrintFormat,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// /api/books/{id} or /api/books/{id}/pages
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/books/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 2 {
		if parts[1] == "pages" && r.Method == http.MethodGet {
			pages, err := s.app.ListPages(user, id)
			if err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"items": pages,
				"count": len(pages),
			})
			return
		}
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(user, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPatch:
		s.handleUpdateBook(w, r, user, id)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	var req struct {
		Title  *string             `json:"title"`
		Status *string             `json:"status"`
		Cover  *domain.CoverDesign `json:"cover"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	in := app.UpdateBookInput{Title: req.Title, Cover: req.Cover}
	if req.Status != nil {
		status := domain.BookStatus(*req.Status)
		in.Status = &status
	}
	book, err := s.app.UpdateBook(user, id, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// /api/pages/{id} or /api/pages/{id}/images
func (s *Server) handlePageByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/pages/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 2 {
		if parts[1] == "images" {
			s.handlePageImages(w, r, user, id)
			return
		}
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Title      *string `json:"title"`
		StoryText  *string `json:"storyText"`
		SpreadType *string `json:"spreadType"`
		SortOrder  *int    `json:"sortOrder"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	page, err := s.app.UpdatePage(user, id, app.UpdatePageInput{
		Title:      req.Title,
		StoryText:  req.StoryText,
		SpreadType: req.SpreadType,
		SortOrder:  req.SortOrder,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
