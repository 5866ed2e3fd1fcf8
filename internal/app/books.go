package app

import (
	"fmt"
	"strings"
	"time"

	"snaptale/internal/util"
	"snaptale/pkg/domain"
)

// CreateBookInput describes a new book.
type CreateBookInput struct {
	Title       string
	PageCount   int
	Cover       domain.CoverDesign
	PrintFormat string
}

// CreateBook creates a draft book with exactly PageCount pages numbered
// 1..PageCount.
func (a *App) CreateBook(owner domain.User, in CreateBookInput) (domain.Book, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Book{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if in.PageCount < MinPageCount || in.PageCount > MaxPageCount {
		return domain.Book{}, fmt.Errorf("%w: pageCount must be between %d and %d", ErrValidation, MinPageCount, MaxPageCount)
	}
	if in.PrintFormat != "" && in.PrintFormat != "hardcover" && in.PrintFormat != "softcover" {
		return domain.Book{}, fmt.Errorf("%w: unknown printFormat %q", ErrValidation, in.PrintFormat)
	}

	now := time.Now().UTC()
	book := domain.Book{
		ID:          util.NewID(),
		UserID:      owner.ID,
		Title:       title,
		PageCount:   in.PageCount,
		Status:      domain.BookDraft,
		Cover:       in.Cover,
		PrintFormat: in.PrintFormat,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}

	pages := make([]domain.Page, 0, in.PageCount)
	for n := 1; n <= in.PageCount; n++ {
		pages = append(pages, domain.Page{
			ID:         util.NewID(),
			BookID:     book.ID,
			PageNumber: n,
			SortOrder:  n,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err := a.store.CreatePages(pages); err != nil {
		return domain.Book{}, fmt.Errorf("create pages: %w", err)
	}
	return book, nil
}

// UpdateBookInput carries optional book mutations; nil fields are left
// unchanged.
type UpdateBookInput struct {
	Title  *string
	Status *domain.BookStatus
	Cover  *domain.CoverDesign
}

var bookStatusOrder = map[domain.BookStatus]int{
	domain.BookDraft:        0,
	domain.BookGenerating:   1,
	domain.BookReadyToPrint: 2,
	domain.BookOrdered:      3,
	domain.BookCompleted:    4,
}

// UpdateBook applies the given mutations after an ownership check.
// Status may only move forward.
func (a *App) UpdateBook(user domain.User, bookID string, in UpdateBookInput) (domain.Book, error) {
	book, err := a.requireBookOwner(user, bookID)
	if err != nil {
		return domain.Book{}, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.Book{}, fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}
		book.Title = title
	}
	if in.Cover != nil {
		book.Cover = *in.Cover
	}
	if in.Status != nil {
		from, okFrom := bookStatusOrder[book.Status]
		to, okTo := bookStatusOrder[*in.Status]
		if !okTo {
			return domain.Book{}, fmt.Errorf("%w: unknown status %q", ErrValidation, *in.Status)
		}
		if !okFrom || to < from {
			return domain.Book{}, fmt.Errorf("%w: cannot move book from %s to %s", ErrValidation, book.Status, *in.Status)
		}
		book.Status = *in.Status
	}

	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// ListBooks returns the user's books; admins see all books.
func (a *App) ListBooks(user domain.User) ([]domain.Book, error) {
	if user.Role == domain.RoleAdmin {
		return a.store.ListBooks()
	}
	return a.store.ListBooksByUser(user.ID)
}

// GetBook fetches a book after an ownership check.
func (a *App) GetBook(user domain.User, bookID string) (domain.Book, error) {
	return a.requireBookOwner(user, bookID)
}

// requireBookOwner resolves the book and refuses when it belongs to a
// different user. Admins pass.
func (a *App) requireBookOwner(user domain.User, bookID string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Book{}, fmt.Errorf("lookup book: %w", err)
	}
	if !ok {
		return domain.Book{}, fmt.Errorf("book %s: %w", bookID, ErrNotFound)
	}
	if book.UserID != user.ID && user.Role != domain.RoleAdmin {
		return domain.Book{}, ErrForbidden
	}
	return book, nil
}
