package app

import (
	"fmt"
	"strings"
	"time"

	"snaptale/pkg/domain"
)

// ListPages returns the pages of a book in page order, after an
// ownership check.
func (a *App) ListPages(user domain.User, bookID string) ([]domain.Page, error) {
	if _, err := a.requireBookOwner(user, bookID); err != nil {
		return nil, err
	}
	return a.store.ListPagesByBook(bookID)
}

// UpdatePageInput carries optional page mutations.
type UpdatePageInput struct {
	Title      *string
	StoryText  *string
	SpreadType *string
	SortOrder  *int
}

var validSpreadTypes = map[string]bool{
	"single": true,
	"double": true,
	"full":   true,
}

// UpdatePage applies the given mutations after resolving the page's
// book and checking ownership.
func (a *App) UpdatePage(user domain.User, pageID string, in UpdatePageInput) (domain.Page, error) {
	page, err := a.requirePageOwner(user, pageID)
	if err != nil {
		return domain.Page{}, err
	}

	if in.Title != nil {
		page.Title = strings.TrimSpace(*in.Title)
	}
	if in.StoryText != nil {
		page.StoryText = *in.StoryText
	}
	if in.SpreadType != nil {
		spread := strings.TrimSpace(*in.SpreadType)
		if spread != "" && !validSpreadTypes[spread] {
			return domain.Page{}, fmt.Errorf("%w: unknown spreadType %q", ErrValidation, spread)
		}
		page.SpreadType = spread
	}
	if in.SortOrder != nil {
		if *in.SortOrder < 1 {
			return domain.Page{}, fmt.Errorf("%w: sortOrder must be positive", ErrValidation)
		}
		page.SortOrder = *in.SortOrder
	}

	page.UpdatedAt = time.Now().UTC()
	if err := a.store.SavePage(page); err != nil {
		return domain.Page{}, fmt.Errorf("save page: %w", err)
	}
	return page, nil
}

// requirePageOwner resolves a page and checks the owning book's user.
func (a *App) requirePageOwner(user domain.User, pageID string) (domain.Page, error) {
	page, ok, err := a.store.GetPage(pageID)
	if err != nil {
		return domain.Page{}, fmt.Errorf("lookup page: %w", err)
	}
	if !ok {
		return domain.Page{}, fmt.Errorf("page %s: %w", pageID, ErrNotFound)
	}
	if _, err := a.requireBookOwner(user, page.BookID); err != nil {
		return domain.Page{}, err
	}
	return page, nil
}
