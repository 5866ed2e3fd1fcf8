package store

import (
	"snaptale/pkg/domain"
)

// Store defines persistence operations for users, books, pages, images,
// and print orders.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByExternalID(externalID string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	UserCount() (int, error)

	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	ListBooksByUser(userID string) ([]domain.Book, error)
	SetBookStatus(id string, status domain.BookStatus) error
	SetBookPrintedPageCount(id string, pages int) error

	// pages
	CreatePages(pages []domain.Page) error
	GetPage(id string) (domain.Page, bool, error)
	ListPagesByBook(bookID string) ([]domain.Page, error)
	SavePage(domain.Page) error

	// images
	SaveImage(domain.Image) error
	GetImage(id string) (domain.Image, bool, error)
	ListImagesByPage(pageID string) ([]domain.Image, error)
	SetImageStatus(id string, status domain.ImageStatus, transformedKey, errMsg string) error

	// orders
	SaveOrder(domain.PrintOrder) error
	GetOrder(id string) (domain.PrintOrder, bool, error)
	GetOrderByStripeSession(sessionID string) (domain.PrintOrder, bool, error)
	ListOrdersByUser(userID string) ([]domain.PrintOrder, error)
	ListOpenOrders() ([]domain.PrintOrder, error)
	// AdvanceOrderStatus moves an order from one status to the next. The
	// update is conditional on the current status so replayed or concurrent
	// processing can never move an order backwards. Returns false when the
	// order is no longer in the expected status.
	AdvanceOrderStatus(id string, from, to domain.OrderStatus, lastError string) (bool, error)
	SetOrderPrintJob(id string, printJobID string) error
}
