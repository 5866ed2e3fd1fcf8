package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"snaptale/internal/util"
	"snaptale/pkg/ai"
	"snaptale/pkg/domain"
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadImage stores an original photo for a page and records it at
// pending. The transform itself is requested separately.
func (a *App) UploadImage(ctx context.Context, user domain.User, pageID, contentType string, r io.Reader, size int64) (domain.Image, error) {
	page, err := a.requirePageOwner(user, pageID)
	if err != nil {
		return domain.Image{}, err
	}
	ext, ok := allowedImageTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return domain.Image{}, fmt.Errorf("%w: unsupported content type %q", ErrValidation, contentType)
	}
	if size <= 0 || size > a.maxUploadBytes {
		return domain.Image{}, fmt.Errorf("%w: image size must be between 1 and %d bytes", ErrValidation, a.maxUploadBytes)
	}

	existing, err := a.store.ListImagesByPage(page.ID)
	if err != nil {
		return domain.Image{}, fmt.Errorf("list images: %w", err)
	}

	id := util.NewID()
	key := fmt.Sprintf("originals/%s/%s%s", page.BookID, id, ext)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return domain.Image{}, fmt.Errorf("store photo: %w", err)
	}

	now := time.Now().UTC()
	img := domain.Image{
		ID:          id,
		PageID:      page.ID,
		OriginalKey: key,
		Status:      domain.ImagePending,
		OrderIndex:  len(existing),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveImage(img); err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.Image{}, fmt.Errorf("save image: %w", err)
	}
	return img, nil
}

// ListPageImages returns a page's images after an ownership check.
func (a *App) ListPageImages(user domain.User, pageID string) ([]domain.Image, error) {
	if _, err := a.requirePageOwner(user, pageID); err != nil {
		return nil, err
	}
	return a.store.ListImagesByPage(pageID)
}

// ImageView is an image record plus presigned URLs for its objects.
type ImageView struct {
	domain.Image
	OriginalURL    string `json:"originalUrl,omitempty"`
	TransformedURL string `json:"transformedUrl,omitempty"`
}

// GetImage returns an image with presigned URLs, after ownership checks.
func (a *App) GetImage(ctx context.Context, user domain.User, imageID string) (ImageView, error) {
	img, err := a.requireImageOwner(user, imageID)
	if err != nil {
		return ImageView{}, err
	}
	view := ImageView{Image: img}
	if img.OriginalKey != "" {
		if url, err := a.objects.PresignGet(ctx, img.OriginalKey, a.presignExpiry); err == nil {
			view.OriginalURL = url
		}
	}
	if img.TransformedKey != "" {
		if url, err := a.objects.PresignGet(ctx, img.TransformedKey, a.presignExpiry); err == nil {
			view.TransformedURL = url
		}
	}
	return view, nil
}

// TransformOptions selects the illustration style for one image.
type TransformOptions struct {
	Style          string
	CharacterRefs  []string
	PromptAddendum string
}

// RequestTransform validates options, stores them on the book, and
// enqueues a transform job for the worker.
func (a *App) RequestTransform(ctx context.Context, user domain.User, imageID string, opts TransformOptions) (domain.Image, error) {
	img, err := a.requireImageOwner(user, imageID)
	if err != nil {
		return domain.Image{}, err
	}
	if len(opts.CharacterRefs) > ai.MaxCharacterRefs {
		return domain.Image{}, fmt.Errorf("%w: at most %d character references allowed", ErrValidation, ai.MaxCharacterRefs)
	}
	if err := a.validateCharacterRefs(user, opts.CharacterRefs); err != nil {
		return domain.Image{}, err
	}

	if len(opts.CharacterRefs) > 0 {
		page, _, err := a.store.GetPage(img.PageID)
		if err != nil {
			return domain.Image{}, fmt.Errorf("lookup page: %w", err)
		}
		book, ok, err := a.store.GetBook(page.BookID)
		if err != nil {
			return domain.Image{}, fmt.Errorf("lookup book: %w", err)
		}
		if !ok {
			return domain.Image{}, fmt.Errorf("book %s: %w", page.BookID, ErrNotFound)
		}
		book.CharacterRefs = opts.CharacterRefs
		book.UpdatedAt = time.Now().UTC()
		if err := a.store.SaveBook(book); err != nil {
			return domain.Image{}, fmt.Errorf("save character refs: %w", err)
		}
	}

	if err := a.store.SetImageStatus(img.ID, domain.ImagePending, "", ""); err != nil {
		return domain.Image{}, fmt.Errorf("reset image status: %w", err)
	}
	if _, err := a.transformQueue.Enqueue(ctx, encodeTransformRef(img.ID, opts)); err != nil {
		return domain.Image{}, fmt.Errorf("enqueue transform: %w", err)
	}
	img.Status = domain.ImagePending
	return img, nil
}

// TransformImage is the worker-side operation: fetch the original,
// invoke the provider, store the stylized result.
func (a *App) TransformImage(ctx context.Context, refID string) error {
	imageID, opts := decodeTransformRef(refID)
	img, ok, err := a.store.GetImage(imageID)
	if err != nil {
		return fmt.Errorf("lookup image: %w", err)
	}
	if !ok {
		return fmt.Errorf("image %s: %w", imageID, ErrNotFound)
	}

	if err := a.store.SetImageStatus(img.ID, domain.ImageGenerating, "", ""); err != nil {
		return fmt.Errorf("mark generating: %w", err)
	}

	result, err := a.runTransform(ctx, img, opts)
	if err != nil {
		if statusErr := a.store.SetImageStatus(img.ID, domain.ImageFailed, "", err.Error()); statusErr != nil {
			return fmt.Errorf("mark failed after %v: %w", err, statusErr)
		}
		return err
	}

	ext := ".png"
	if result.ContentType == "image/jpeg" {
		ext = ".jpg"
	}
	page, _, err := a.store.GetPage(img.PageID)
	if err != nil {
		return fmt.Errorf("lookup page: %w", err)
	}
	key := fmt.Sprintf("illustrations/%s/%s%s", page.BookID, img.ID, ext)
	if err := a.objects.Put(ctx, key, bytes.NewReader(result.Image), int64(len(result.Image)), result.ContentType); err != nil {
		_ = a.store.SetImageStatus(img.ID, domain.ImageFailed, "", err.Error())
		return fmt.Errorf("store illustration: %w", err)
	}
	if err := a.store.SetImageStatus(img.ID, domain.ImageCompleted, key, ""); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (a *App) runTransform(ctx context.Context, img domain.Image, opts TransformOptions) (ai.TransformResult, error) {
	rc, err := a.objects.Get(ctx, img.OriginalKey)
	if err != nil {
		return ai.TransformResult{}, fmt.Errorf("fetch original: %w", err)
	}
	defer rc.Close()
	original, err := io.ReadAll(rc)
	if err != nil {
		return ai.TransformResult{}, fmt.Errorf("read original: %w", err)
	}

	// Character reference keys live on the book so reruns pick up the
	// latest set.
	page, _, err := a.store.GetPage(img.PageID)
	if err != nil {
		return ai.TransformResult{}, fmt.Errorf("lookup page: %w", err)
	}
	book, _, err := a.store.GetBook(page.BookID)
	if err != nil {
		return ai.TransformResult{}, fmt.Errorf("lookup book: %w", err)
	}

	refs := make([][]byte, 0, len(book.CharacterRefs))
	for _, refKey := range book.CharacterRefs {
		refRC, err := a.objects.Get(ctx, refKey)
		if err != nil {
			return ai.TransformResult{}, fmt.Errorf("fetch character ref %s: %w", refKey, err)
		}
		data, err := io.ReadAll(refRC)
		refRC.Close()
		if err != nil {
			return ai.TransformResult{}, fmt.Errorf("read character ref %s: %w", refKey, err)
		}
		refs = append(refs, data)
	}

	return a.transformer.Transform(ctx, ai.TransformRequest{
		Image:          original,
		ContentType:    contentTypeForKey(img.OriginalKey),
		Style:          opts.Style,
		CharacterRefs:  refs,
		PromptAddendum: opts.PromptAddendum,
	})
}

func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// requireImageOwner resolves an image through its page and book.
// validateCharacterRefs ensures every reference key points at a photo
// uploaded to one of the caller's own books.
func (a *App) validateCharacterRefs(user domain.User, refs []string) error {
	for _, ref := range refs {
		rest, found := strings.CutPrefix(ref, "originals/")
		bookID, _, nested := strings.Cut(rest, "/")
		if !found || !nested || bookID == "" {
			return fmt.Errorf("%w: character reference %q is not an uploaded photo", ErrValidation, ref)
		}
		if _, err := a.requireBookOwner(user, bookID); err != nil {
			return fmt.Errorf("%w: character reference %q does not point at your uploads", ErrValidation, ref)
		}
	}
	return nil
}

func (a *App) requireImageOwner(user domain.User, imageID string) (domain.Image, error) {
	img, ok, err := a.store.GetImage(imageID)
	if err != nil {
		return domain.Image{}, fmt.Errorf("lookup image: %w", err)
	}
	if !ok {
		return domain.Image{}, fmt.Errorf("image %s: %w", imageID, ErrNotFound)
	}
	if _, err := a.requirePageOwner(user, img.PageID); err != nil {
		return domain.Image{}, err
	}
	return img, nil
}
