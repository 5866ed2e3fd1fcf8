package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"snaptale/pkg/domain"
	"snaptale/pkg/storage"
)

// Square book trim size in millimeters (8.5" x 8.5").
const (
	pageSizeMM    = 215.9
	pageMarginMM  = 12.0
	imageHeightMM = 130.0
	fetchParallel = 4
	coverSpineMM  = 8.0
)

// PageContent pairs a book page with the object key of its finished
// illustration, if one exists.
type PageContent struct {
	Page     domain.Page
	ImageKey string
}

// Composer renders book interiors and covers as PDFs from stored
// illustrations and page text.
type Composer struct {
	objects storage.ObjectStore
}

// NewComposer creates a PDF composer backed by the given object store.
func NewComposer(objects storage.ObjectStore) *Composer {
	return &Composer{objects: objects}
}

// ComposeInterior renders one PDF page per book page: illustration on
// top, story text underneath. Illustrations are fetched concurrently.
func (c *Composer) ComposeInterior(ctx context.Context, book domain.Book, pages []PageContent) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("compose interior: book %s has no pages", book.ID)
	}

	images := make([][]byte, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallel)
	for i, pc := range pages {
		i, pc := i, pc
		if pc.ImageKey == "" {
			continue
		}
		g.Go(func() error {
			data, err := c.fetch(gctx, pc.ImageKey)
			if err != nil {
				return fmt.Errorf("page %d illustration: %w", pc.Page.PageNumber, err)
			}
			images[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: pageSizeMM, Ht: pageSizeMM},
	})
	doc.SetMargins(pageMarginMM, pageMarginMM, pageMarginMM)
	doc.SetAutoPageBreak(false, pageMarginMM)

	for i, pc := range pages {
		doc.AddPage()
		if images[i] != nil {
			placeImage(doc, fmt.Sprintf("page-%s", pc.Page.ID), images[i])
		}
		doc.SetY(pageMarginMM + imageHeightMM + 10)
		doc.SetFont("Helvetica", "", 14)
		text := strings.TrimSpace(pc.Page.StoryText)
		if text != "" {
			doc.MultiCell(pageSizeMM-2*pageMarginMM, 7, text, "", "C", false)
		}
		doc.SetFont("Helvetica", "I", 9)
		doc.SetY(pageSizeMM - pageMarginMM)
		doc.CellFormat(pageSizeMM-2*pageMarginMM, 5, fmt.Sprintf("%d", pc.Page.PageNumber), "", 0, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("compose interior: %w", err)
	}
	return buf.Bytes(), nil
}

// ComposeCover renders a one-piece wraparound cover (back, spine,
// front) from the book's cover design.
func (c *Composer) ComposeCover(ctx context.Context, book domain.Book) ([]byte, error) {
	width := 2*pageSizeMM + coverSpineMM
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "L",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: width, Ht: pageSizeMM},
	})
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()

	fillCoverBackground(doc, book.Cover.Theme, width)

	// Front cover occupies the right half.
	frontLeft := pageSizeMM + coverSpineMM
	title := strings.TrimSpace(book.Cover.Title)
	if title == "" {
		title = book.Title
	}
	doc.SetFont("Helvetica", "B", 32)
	doc.SetXY(frontLeft+pageMarginMM, pageSizeMM/3)
	doc.MultiCell(pageSizeMM-2*pageMarginMM, 14, title, "", "C", false)
	if sub := strings.TrimSpace(book.Cover.Subtitle); sub != "" {
		doc.SetFont("Helvetica", "", 18)
		doc.SetX(frontLeft + pageMarginMM)
		doc.MultiCell(pageSizeMM-2*pageMarginMM, 9, sub, "", "C", false)
	}

	// Dedication goes on the back.
	if ded := strings.TrimSpace(book.Cover.Dedication); ded != "" {
		doc.SetFont("Helvetica", "I", 12)
		doc.SetXY(pageMarginMM, pageSizeMM/2)
		doc.MultiCell(pageSizeMM-2*pageMarginMM, 7, ded, "", "C", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("compose cover: %w", err)
	}
	return buf.Bytes(), nil
}

// CountPages reads a rendered PDF back and returns its page count.
func CountPages(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return reader.NumPage(), nil
}

func (c *Composer) fetch(ctx context.Context, key string) ([]byte, error) {
	rc, err := c.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("object %s is empty", key)
	}
	return data, nil
}

func placeImage(doc *fpdf.Fpdf, name string, data []byte) {
	imageType := ""
	switch http.DetectContentType(data) {
	case "image/jpeg":
		imageType = "JPG"
	case "image/png":
		imageType = "PNG"
	case "image/gif":
		imageType = "GIF"
	default:
		return
	}
	opts := fpdf.ImageOptions{ImageType: imageType}
	doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	width := pageSizeMM - 2*pageMarginMM
	doc.ImageOptions(name, pageMarginMM, pageMarginMM, width, imageHeightMM, false, opts, 0, "")
}

func fillCoverBackground(doc *fpdf.Fpdf, theme string, width float64) {
	r, g, b := 245, 241, 230
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case "ocean":
		r, g, b = 208, 231, 245
	case "forest":
		r, g, b = 214, 238, 214
	case "sunset":
		r, g, b = 250, 224, 200
	}
	doc.SetFillColor(r, g, b)
	doc.Rect(0, 0, width, pageSizeMM, "F")
}
