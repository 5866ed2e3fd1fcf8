package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"snaptale/internal/lulu"
	"snaptale/internal/pdf"
	"snaptale/internal/util"
	"snaptale/pkg/domain"
)

// Retail pricing and vendor cost estimates, in cents.
const (
	hardcoverBasePriceCents = 2499
	softcoverBasePriceCents = 1499
	perPagePriceCents       = 75
	hardcoverBaseCostCents  = 1200
	softcoverBaseCostCents  = 700
	perPageCostCents        = 40
	orderCurrency           = "usd"
)

// CreateOrderInput describes a new print order.
type CreateOrderInput struct {
	BookID       string
	Shipping     domain.ShippingAddress
	ContactEmail string
}

// CreateOrderResult is the created order plus the hosted checkout URL.
type CreateOrderResult struct {
	Order       domain.PrintOrder `json:"order"`
	CheckoutURL string            `json:"checkoutUrl"`
}

// CreateOrder validates the request, prices the book, records the order
// at pending_payment, and opens a checkout session.
func (a *App) CreateOrder(ctx context.Context, user domain.User, in CreateOrderInput) (CreateOrderResult, error) {
	book, err := a.requireBookOwner(user, in.BookID)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if book.Status != domain.BookReadyToPrint {
		return CreateOrderResult{}, fmt.Errorf("%w: book must be ready_to_print, is %s", ErrValidation, book.Status)
	}
	if err := validateShipping(in.Shipping); err != nil {
		return CreateOrderResult{}, err
	}
	email := normalizeEmail(in.ContactEmail)
	if email == "" || !strings.Contains(email, "@") {
		return CreateOrderResult{}, fmt.Errorf("%w: valid contactEmail required", ErrValidation)
	}

	price, cost := priceBook(book)
	now := time.Now().UTC()
	order := domain.PrintOrder{
		ID:           util.NewID(),
		BookID:       book.ID,
		UserID:       user.ID,
		Status:       domain.OrderPendingPayment,
		PriceCents:   price,
		CostCents:    cost,
		Currency:     orderCurrency,
		Shipping:     in.Shipping,
		ContactEmail: email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveOrder(order); err != nil {
		return CreateOrderResult{}, fmt.Errorf("save order: %w", err)
	}

	session, err := a.payments.CreateCheckoutSession(ctx, CheckoutInput{
		OrderID:       order.ID,
		BookTitle:     book.Title,
		PriceCents:    price,
		Currency:      orderCurrency,
		CustomerEmail: email,
	})
	if err != nil {
		return CreateOrderResult{}, fmt.Errorf("create checkout session: %w", err)
	}
	order.StripeSessionID = session.ID
	order.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveOrder(order); err != nil {
		return CreateOrderResult{}, fmt.Errorf("record checkout session: %w", err)
	}

	return CreateOrderResult{Order: order, CheckoutURL: session.URL}, nil
}

// ListOrders returns the user's orders.
func (a *App) ListOrders(user domain.User) ([]domain.PrintOrder, error) {
	return a.store.ListOrdersByUser(user.ID)
}

// GetOrder fetches an order after an ownership check.
func (a *App) GetOrder(user domain.User, orderID string) (domain.PrintOrder, error) {
	return a.requireOrderOwner(user, orderID)
}

// HandleCheckoutCompleted reacts to a confirmed payment: advance the
// order to payment_received, mark the book ordered, and hand the order
// to the worker. Replayed webhooks are no-ops.
func (a *App) HandleCheckoutCompleted(ctx context.Context, sessionID, clientReferenceID string) error {
	order, ok, err := a.store.GetOrderByStripeSession(sessionID)
	if err != nil {
		return fmt.Errorf("lookup order by session: %w", err)
	}
	if !ok && clientReferenceID != "" {
		order, ok, err = a.store.GetOrder(clientReferenceID)
		if err != nil {
			return fmt.Errorf("lookup order: %w", err)
		}
	}
	if !ok {
		return fmt.Errorf("checkout session %s: %w", sessionID, ErrOrderNotFound)
	}

	advanced, err := a.store.AdvanceOrderStatus(order.ID, domain.OrderPendingPayment, domain.OrderPaymentReceived, "")
	if err != nil {
		return fmt.Errorf("advance order: %w", err)
	}
	if !advanced {
		// Already past pending_payment; a replayed event.
		return nil
	}
	if err := a.store.SetBookStatus(order.BookID, domain.BookOrdered); err != nil {
		return fmt.Errorf("mark book ordered: %w", err)
	}
	if _, err := a.orderQueue.Enqueue(ctx, order.ID); err != nil {
		return fmt.Errorf("enqueue order processing: %w", err)
	}
	return nil
}

// ProcessOrder drives a paid order through PDF generation and vendor
// submission. Statuses only move forward; any step failure parks the
// order at failed with the error recorded. Orders already at or past
// submitted are a no-op success, so manual retries can never submit the
// same book to the vendor twice.
func (a *App) ProcessOrder(ctx context.Context, orderID string) error {
	order, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return fmt.Errorf("lookup order: %w", err)
	}
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}

	switch order.Status {
	case domain.OrderSubmitted, domain.OrderInProduction, domain.OrderShipped, domain.OrderDelivered:
		return nil
	case domain.OrderFailed:
		return fmt.Errorf("order %s already failed: %s", orderID, order.LastError)
	case domain.OrderPendingPayment:
		return fmt.Errorf("%w: order %s has not been paid", ErrValidation, orderID)
	}

	current := order.Status
	advance := func(to domain.OrderStatus) error {
		moved, err := a.store.AdvanceOrderStatus(order.ID, current, to, "")
		if err != nil {
			return fmt.Errorf("advance %s to %s: %w", current, to, err)
		}
		if !moved {
			return fmt.Errorf("order %s left %s while processing", order.ID, current)
		}
		current = to
		return nil
	}
	fail := func(stepErr error) error {
		if _, markErr := a.store.AdvanceOrderStatus(order.ID, current, domain.OrderFailed, stepErr.Error()); markErr != nil {
			return fmt.Errorf("mark order failed after %v: %w", stepErr, markErr)
		}
		return stepErr
	}

	if current == domain.OrderPaymentReceived {
		if err := advance(domain.OrderGeneratingPDFs); err != nil {
			return err
		}
	}

	interiorKey, coverKey, err := a.generateOrderPDFs(ctx, order)
	if err != nil {
		return fail(fmt.Errorf("generate pdfs: %w", err))
	}

	if current != domain.OrderSubmittingToPrinter {
		if err := advance(domain.OrderSubmittingToPrinter); err != nil {
			return err
		}
	}

	if err := a.submitToVendor(ctx, order, interiorKey, coverKey); err != nil {
		return fail(fmt.Errorf("submit print job: %w", err))
	}

	return advance(domain.OrderSubmitted)
}

// SyncOrderStatus polls the vendor and advances the order when the
// vendor reports production progress.
func (a *App) SyncOrderStatus(ctx context.Context, orderID string) error {
	order, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return fmt.Errorf("lookup order: %w", err)
	}
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	if order.PrintJobID == "" {
		return nil
	}

	job, err := a.vendor.GetPrintJob(ctx, order.PrintJobID)
	if err != nil {
		return fmt.Errorf("fetch print job: %w", err)
	}
	target, mapped := lulu.OrderStatusFor(job.Status)
	if !mapped {
		return nil
	}

	if target == domain.OrderFailed {
		if _, err := a.store.AdvanceOrderStatus(order.ID, order.Status, domain.OrderFailed,
			fmt.Sprintf("print vendor reported %s", job.Status)); err != nil {
			return fmt.Errorf("mark order failed: %w", err)
		}
		return nil
	}
	if domain.OrderStatusRank(target) <= domain.OrderStatusRank(order.Status) {
		return nil
	}
	if _, err := a.store.AdvanceOrderStatus(order.ID, order.Status, target, ""); err != nil {
		return fmt.Errorf("advance order: %w", err)
	}
	if target == domain.OrderDelivered {
		if err := a.store.SetBookStatus(order.BookID, domain.BookCompleted); err != nil {
			return fmt.Errorf("mark book completed: %w", err)
		}
	}
	return nil
}

// SyncOpenOrders runs SyncOrderStatus over every order still in flight
// with the vendor. Per-order failures are logged, not fatal.
func (a *App) SyncOpenOrders(ctx context.Context) {
	orders, err := a.store.ListOpenOrders()
	if err != nil {
		slog.Error("list open orders", "error", err)
		return
	}
	for _, order := range orders {
		if err := a.SyncOrderStatus(ctx, order.ID); err != nil {
			slog.Error("sync order status", "orderId", order.ID, "error", err)
		}
	}
}

func (a *App) generateOrderPDFs(ctx context.Context, order domain.PrintOrder) (string, string, error) {
	book, ok, err := a.store.GetBook(order.BookID)
	if err != nil {
		return "", "", fmt.Errorf("lookup book: %w", err)
	}
	if !ok {
		return "", "", fmt.Errorf("book %s: %w", order.BookID, ErrNotFound)
	}
	pages, err := a.store.ListPagesByBook(book.ID)
	if err != nil {
		return "", "", fmt.Errorf("list pages: %w", err)
	}

	contents := make([]pdf.PageContent, 0, len(pages))
	for _, page := range pages {
		key, err := a.illustrationKeyFor(page.ID)
		if err != nil {
			return "", "", err
		}
		contents = append(contents, pdf.PageContent{Page: page, ImageKey: key})
	}

	interior, err := a.composer.ComposeInterior(ctx, book, contents)
	if err != nil {
		return "", "", err
	}
	cover, err := a.composer.ComposeCover(ctx, book)
	if err != nil {
		return "", "", err
	}

	interiorKey := fmt.Sprintf("prints/%s/interior.pdf", order.ID)
	coverKey := fmt.Sprintf("prints/%s/cover.pdf", order.ID)
	if err := a.objects.Put(ctx, interiorKey, bytes.NewReader(interior), int64(len(interior)), "application/pdf"); err != nil {
		return "", "", fmt.Errorf("store interior pdf: %w", err)
	}
	if err := a.objects.Put(ctx, coverKey, bytes.NewReader(cover), int64(len(cover)), "application/pdf"); err != nil {
		return "", "", fmt.Errorf("store cover pdf: %w", err)
	}

	if count, err := pdf.CountPages(interior); err != nil {
		slog.Warn("interior page count readback failed", "order_id", order.ID, "err", err)
	} else if err := a.store.SetBookPrintedPageCount(book.ID, count); err != nil {
		return "", "", fmt.Errorf("record printed page count: %w", err)
	}
	return interiorKey, coverKey, nil
}

// illustrationKeyFor picks the finished illustration for a page: the
// completed image with the lowest order index.
func (a *App) illustrationKeyFor(pageID string) (string, error) {
	images, err := a.store.ListImagesByPage(pageID)
	if err != nil {
		return "", fmt.Errorf("list images for page %s: %w", pageID, err)
	}
	best := ""
	bestIndex := -1
	for _, img := range images {
		if img.Status != domain.ImageCompleted || img.TransformedKey == "" {
			continue
		}
		if bestIndex == -1 || img.OrderIndex < bestIndex {
			best = img.TransformedKey
			bestIndex = img.OrderIndex
		}
	}
	return best, nil
}

func (a *App) submitToVendor(ctx context.Context, order domain.PrintOrder, interiorKey, coverKey string) error {
	book, _, err := a.store.GetBook(order.BookID)
	if err != nil {
		return fmt.Errorf("lookup book: %w", err)
	}

	// The vendor fetches files itself, so presign with enough headroom
	// for its validation queue.
	interiorURL, err := a.objects.PresignGet(ctx, interiorKey, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("presign interior: %w", err)
	}
	coverURL, err := a.objects.PresignGet(ctx, coverKey, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("presign cover: %w", err)
	}

	pageCount := book.PrintedPageCount
	if pageCount == 0 {
		pageCount = book.PageCount
	}
	job, err := a.vendor.CreatePrintJob(ctx, lulu.CreatePrintJobInput{
		OrderID:      order.ID,
		Title:        book.Title,
		PodPackageID: podPackageFor(book.PrintFormat),
		PageCount:    pageCount,
		InteriorURL:  interiorURL,
		CoverURL:     coverURL,
		ContactEmail: order.ContactEmail,
		Shipping:     order.Shipping,
	})
	if err != nil {
		return err
	}
	if err := a.store.SetOrderPrintJob(order.ID, job.ID); err != nil {
		return fmt.Errorf("record print job id: %w", err)
	}
	return nil
}

func podPackageFor(printFormat string) string {
	if printFormat == "softcover" {
		return lulu.PodPackageSoftcoverSquare
	}
	return lulu.PodPackageHardcoverSquare
}

func priceBook(book domain.Book) (priceCents, costCents int64) {
	pages := int64(book.PageCount)
	if book.PrintFormat == "softcover" {
		return softcoverBasePriceCents + pages*perPagePriceCents,
			softcoverBaseCostCents + pages*perPageCostCents
	}
	return hardcoverBasePriceCents + pages*perPagePriceCents,
		hardcoverBaseCostCents + pages*perPageCostCents
}

func validateShipping(s domain.ShippingAddress) error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("%w: shipping name required", ErrValidation)
	case strings.TrimSpace(s.Street1) == "":
		return fmt.Errorf("%w: shipping street1 required", ErrValidation)
	case strings.TrimSpace(s.City) == "":
		return fmt.Errorf("%w: shipping city required", ErrValidation)
	case strings.TrimSpace(s.PostalCode) == "":
		return fmt.Errorf("%w: shipping postalCode required", ErrValidation)
	case strings.TrimSpace(s.Country) == "":
		return fmt.Errorf("%w: shipping country required", ErrValidation)
	}
	return nil
}

// requireOrderOwner resolves an order and refuses when it belongs to a
// different user. Admins pass.
func (a *App) requireOrderOwner(user domain.User, orderID string) (domain.PrintOrder, error) {
	order, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return domain.PrintOrder{}, fmt.Errorf("lookup order: %w", err)
	}
	if !ok {
		return domain.PrintOrder{}, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	if order.UserID != user.ID && user.Role != domain.RoleAdmin {
		return domain.PrintOrder{}, ErrForbidden
	}
	return order, nil
}
