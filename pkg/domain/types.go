package domain

import "time"

type BookStatus string

const (
	BookDraft        BookStatus = "draft"
	BookGenerating   BookStatus = "generating"
	BookReadyToPrint BookStatus = "ready_to_print"
	BookOrdered      BookStatus = "ordered"
	BookCompleted    BookStatus = "completed"
)

type ImageStatus string

const (
	ImagePending    ImageStatus = "pending"
	ImageGenerating ImageStatus = "generating"
	ImageCompleted  ImageStatus = "completed"
	ImageFailed     ImageStatus = "failed"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// OrderStatus is a forward-only print-order lifecycle state.
type OrderStatus string

const (
	OrderPendingPayment      OrderStatus = "pending_payment"
	OrderPaymentReceived     OrderStatus = "payment_received"
	OrderGeneratingPDFs      OrderStatus = "generating_pdfs"
	OrderSubmittingToPrinter OrderStatus = "submitting_to_lulu"
	OrderSubmitted           OrderStatus = "submitted"
	OrderInProduction        OrderStatus = "in_production"
	OrderShipped             OrderStatus = "shipped"
	OrderDelivered           OrderStatus = "delivered"
	// OrderFailed is a terminal state reached when a processing step fails.
	// A failed order keeps its LastError so it is distinguishable from a
	// stalled one.
	OrderFailed OrderStatus = "failed"
)

// orderSequence is the forward order of non-failure states.
var orderSequence = []OrderStatus{
	OrderPendingPayment,
	OrderPaymentReceived,
	OrderGeneratingPDFs,
	OrderSubmittingToPrinter,
	OrderSubmitted,
	OrderInProduction,
	OrderShipped,
	OrderDelivered,
}

// OrderStatusRank returns the position of status in the forward sequence,
// or -1 for unknown statuses. OrderFailed has no rank.
func OrderStatusRank(status OrderStatus) int {
	for i, s := range orderSequence {
		if s == status {
			return i
		}
	}
	return -1
}

// CanAdvanceOrder reports whether an order may move from one status to
// another. Moves go strictly forward; any non-terminal status may move to
// OrderFailed.
func CanAdvanceOrder(from, to OrderStatus) bool {
	if from == OrderFailed || from == OrderDelivered {
		return false
	}
	if to == OrderFailed {
		return OrderStatusRank(from) >= 0
	}
	fromRank := OrderStatusRank(from)
	toRank := OrderStatusRank(to)
	return fromRank >= 0 && toRank > fromRank
}

type User struct {
	ID           string    `json:"id"`
	ExternalID   string    `json:"externalId,omitempty"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CoverDesign describes the printed cover of a book.
type CoverDesign struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle,omitempty"`
	Theme      string `json:"theme,omitempty"`
	Dedication string `json:"dedication,omitempty"`
}

type Book struct {
	ID               string      `json:"id"`
	UserID           string      `json:"userId"`
	Title            string      `json:"title"`
	PageCount        int         `json:"pageCount"`
	Status           BookStatus  `json:"status"`
	CharacterRefs    []string    `json:"characterRefs,omitempty"`
	Cover            CoverDesign `json:"cover"`
	PrintFormat      string      `json:"printFormat,omitempty"`
	PrintedPageCount int         `json:"printedPageCount,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

type Page struct {
	ID         string    `json:"id"`
	BookID     string    `json:"bookId"`
	PageNumber int       `json:"pageNumber"`
	SortOrder  int       `json:"sortOrder"`
	Title      string    `json:"title"`
	StoryText  string    `json:"storyText"`
	SpreadType string    `json:"spreadType,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Image struct {
	ID             string      `json:"id"`
	PageID         string      `json:"pageId"`
	OriginalKey    string      `json:"-"`
	TransformedKey string      `json:"-"`
	Status         ImageStatus `json:"status"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
	OrderIndex     int         `json:"orderIndex"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// ShippingAddress is the destination for a printed book.
type ShippingAddress struct {
	Name       string `json:"name"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type PrintOrder struct {
	ID              string          `json:"id"`
	BookID          string          `json:"bookId"`
	UserID          string          `json:"userId"`
	Status          OrderStatus     `json:"status"`
	LastError       string          `json:"lastError,omitempty"`
	CostCents       int64           `json:"costCents"`
	PriceCents      int64           `json:"priceCents"`
	Currency        string          `json:"currency"`
	Shipping        ShippingAddress `json:"shipping"`
	ContactEmail    string          `json:"contactEmail"`
	StripeSessionID string          `json:"-"`
	PrintJobID      string          `json:"printJobId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
