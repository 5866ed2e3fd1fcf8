package app

import (
	"context"
	"fmt"
	"strings"
)

const storySystemPrompt = `You write short, warm story text for children's picture books
made from family vacation photos. Write 1-3 sentences in simple, playful language a
young child can follow. Stay concrete: describe what is happening in the scene. Never
mention photos, cameras, or that this is a book page.`

// StoryInput describes the page a suggestion is wanted for.
type StoryInput struct {
	ImageDescription string
	PageNumber       int
	TotalPages       int
	LocationName     string
	BookTitle        string
	PreviousPageText string
}

// SuggestStoryText asks the text provider for story text for one page.
func (a *App) SuggestStoryText(ctx context.Context, in StoryInput) (string, error) {
	if strings.TrimSpace(in.BookTitle) == "" {
		return "", fmt.Errorf("%w: bookTitle required", ErrValidation)
	}
	if in.TotalPages < 1 {
		return "", fmt.Errorf("%w: totalPages must be positive", ErrValidation)
	}
	if in.PageNumber < 1 || in.PageNumber > in.TotalPages {
		return "", fmt.Errorf("%w: pageNumber must be between 1 and %d", ErrValidation, in.TotalPages)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Book title: %q. This is page %d of %d.\n", in.BookTitle, in.PageNumber, in.TotalPages)
	if in.LocationName != "" {
		fmt.Fprintf(&b, "The trip location: %s.\n", in.LocationName)
	}
	if in.ImageDescription != "" {
		fmt.Fprintf(&b, "The page's picture shows: %s.\n", in.ImageDescription)
	}
	if in.PreviousPageText != "" {
		fmt.Fprintf(&b, "The previous page read: %q. Continue the story from there.\n", in.PreviousPageText)
	}
	switch {
	case in.PageNumber == 1:
		b.WriteString("This is the opening page; set the scene for the adventure.")
	case in.PageNumber == in.TotalPages:
		b.WriteString("This is the final page; wrap the story up gently.")
	default:
		b.WriteString("Keep the story moving.")
	}

	suggestion, err := a.generator.GenerateText(ctx, storySystemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("generate story text: %w", err)
	}
	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		return "", fmt.Errorf("generate story text: provider returned empty text")
	}
	return suggestion, nil
}
