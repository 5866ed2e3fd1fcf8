package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"snaptale/pkg/domain"
)

// MemoryStore keeps all records in-process. It exists for tests and local
// development and implements the same Store interface as GormStore.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	byEmail  map[string]string
	byExtID  map[string]string
	books    map[string]domain.Book
	bookIDs  []string
	pages    map[string]domain.Page
	images   map[string]domain.Image
	orders   map[string]domain.PrintOrder
	orderIDs []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		byEmail: make(map[string]string),
		byExtID: make(map[string]string),
		books:   make(map[string]domain.Book),
		pages:   make(map[string]domain.Page),
		images:  make(map[string]domain.Image),
		orders:  make(map[string]domain.PrintOrder),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.byEmail[u.Email] = u.ID
	if u.ExternalID != "" {
		m.byExtID[u.ExternalID] = u.ID
	}
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byEmail[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byEmail[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) GetUserByExternalID(externalID string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byExtID[externalID]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.bookIDs = append(m.bookIDs, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.bookIDs))
	for _, id := range m.bookIDs {
		if b, ok := m.books[id]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

func (m *MemoryStore) ListBooksByUser(userID string) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0)
	for _, id := range m.bookIDs {
		if b, ok := m.books[id]; ok && b.UserID == userID {
			res = append(res, b)
		}
	}
	return res, nil
}

func (m *MemoryStore) SetBookStatus(id string, status domain.BookStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	m.books[id] = b
	return nil
}

func (m *MemoryStore) SetBookPrintedPageCount(id string, pages int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil
	}
	b.PrintedPageCount = pages
	b.UpdatedAt = time.Now().UTC()
	m.books[id] = b
	return nil
}

func (m *MemoryStore) CreatePages(pages []domain.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pages {
		m.pages[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) GetPage(id string) (domain.Page, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[id]
	return p, ok, nil
}

func (m *MemoryStore) ListPagesByBook(bookID string) ([]domain.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Page, 0)
	for _, p := range m.pages {
		if p.BookID == bookID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].PageNumber < res[j].PageNumber })
	return res, nil
}

func (m *MemoryStore) SavePage(p domain.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[p.ID] = p
	return nil
}

func (m *MemoryStore) SaveImage(img domain.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[img.ID] = img
	return nil
}

func (m *MemoryStore) GetImage(id string) (domain.Image, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[id]
	return img, ok, nil
}

func (m *MemoryStore) ListImagesByPage(pageID string) ([]domain.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Image, 0)
	for _, img := range m.images {
		if img.PageID == pageID {
			res = append(res, img)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].OrderIndex < res[j].OrderIndex })
	return res, nil
}

func (m *MemoryStore) SetImageStatus(id string, status domain.ImageStatus, transformedKey, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return nil
	}
	img.Status = status
	img.ErrorMessage = errMsg
	if transformedKey != "" {
		img.TransformedKey = transformedKey
	}
	img.UpdatedAt = time.Now().UTC()
	m.images[id] = img
	return nil
}

func (m *MemoryStore) SaveOrder(o domain.PrintOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ID]; !exists {
		m.orderIDs = append(m.orderIDs, o.ID)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MemoryStore) GetOrder(id string) (domain.PrintOrder, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok, nil
}

func (m *MemoryStore) GetOrderByStripeSession(sessionID string) (domain.PrintOrder, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.StripeSessionID == sessionID {
			return o, true, nil
		}
	}
	return domain.PrintOrder{}, false, nil
}

func (m *MemoryStore) ListOrdersByUser(userID string) ([]domain.PrintOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.PrintOrder, 0)
	for i := len(m.orderIDs) - 1; i >= 0; i-- {
		if o, ok := m.orders[m.orderIDs[i]]; ok && o.UserID == userID {
			res = append(res, o)
		}
	}
	return res, nil
}

func (m *MemoryStore) ListOpenOrders() ([]domain.PrintOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.PrintOrder, 0)
	for _, id := range m.orderIDs {
		o, ok := m.orders[id]
		if !ok {
			continue
		}
		switch o.Status {
		case domain.OrderSubmitted, domain.OrderInProduction, domain.OrderShipped:
			res = append(res, o)
		}
	}
	return res, nil
}

func (m *MemoryStore) AdvanceOrderStatus(id string, from, to domain.OrderStatus, lastError string) (bool, error) {
	if !domain.CanAdvanceOrder(from, to) {
		return false, fmt.Errorf("order status cannot move from %s to %s", from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.LastError = lastError
	o.UpdatedAt = time.Now().UTC()
	m.orders[id] = o
	return true, nil
}

func (m *MemoryStore) SetOrderPrintJob(id string, printJobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil
	}
	o.PrintJobID = printJobID
	o.UpdatedAt = time.Now().UTC()
	m.orders[id] = o
	return nil
}
