package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"snaptale/pkg/domain"
)

type memObjects struct {
	data map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{data: map[string][]byte{}}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestComposeInteriorPageCountMatchesBook(t *testing.T) {
	objects := newMemObjects()
	illustration := pngBytes(t)
	book := domain.Book{ID: "book-1", Title: "Summer in Lisbon", PageCount: 4}

	pages := make([]PageContent, 0, book.PageCount)
	for i := 1; i <= book.PageCount; i++ {
		key := fmt.Sprintf("illustrations/book-1/p%d.png", i)
		objects.data[key] = illustration
		pages = append(pages, PageContent{
			Page: domain.Page{
				ID:         fmt.Sprintf("page-%d", i),
				BookID:     book.ID,
				PageNumber: i,
				StoryText:  fmt.Sprintf("On day %d we found a tram full of seagulls.", i),
			},
			ImageKey: key,
		})
	}

	composer := NewComposer(objects)
	data, err := composer.ComposeInterior(context.Background(), book, pages)
	if err != nil {
		t.Fatalf("compose interior: %v", err)
	}

	got, err := CountPages(data)
	if err != nil {
		t.Fatalf("count pages: %v", err)
	}
	if got != book.PageCount {
		t.Fatalf("interior page count = %d, want %d", got, book.PageCount)
	}
}

func TestComposeInteriorHandlesMissingIllustrations(t *testing.T) {
	composer := NewComposer(newMemObjects())
	book := domain.Book{ID: "book-2", Title: "Untitled", PageCount: 2}
	pages := []PageContent{
		{Page: domain.Page{ID: "p1", BookID: book.ID, PageNumber: 1, StoryText: "A quiet morning."}},
		{Page: domain.Page{ID: "p2", BookID: book.ID, PageNumber: 2}},
	}

	data, err := composer.ComposeInterior(context.Background(), book, pages)
	if err != nil {
		t.Fatalf("compose interior: %v", err)
	}
	if got, err := CountPages(data); err != nil || got != 2 {
		t.Fatalf("page count = %d err = %v, want 2 pages", got, err)
	}
}

func TestComposeInteriorFailsOnMissingObject(t *testing.T) {
	composer := NewComposer(newMemObjects())
	book := domain.Book{ID: "book-3", PageCount: 1}
	pages := []PageContent{
		{Page: domain.Page{ID: "p1", BookID: book.ID, PageNumber: 1}, ImageKey: "missing-key"},
	}
	if _, err := composer.ComposeInterior(context.Background(), book, pages); err == nil {
		t.Fatal("expected fetch failure for missing illustration object")
	}
}

func TestComposeCover(t *testing.T) {
	composer := NewComposer(newMemObjects())
	book := domain.Book{
		ID:    "book-4",
		Title: "Fallback Title",
		Cover: domain.CoverDesign{
			Title:      "The Great Gelato Hunt",
			Subtitle:   "A Roman Holiday",
			Theme:      "sunset",
			Dedication: "For Nana",
		},
	}
	data, err := composer.ComposeCover(context.Background(), book)
	if err != nil {
		t.Fatalf("compose cover: %v", err)
	}
	if got, err := CountPages(data); err != nil || got != 1 {
		t.Fatalf("cover page count = %d err = %v, want 1", got, err)
	}
}
