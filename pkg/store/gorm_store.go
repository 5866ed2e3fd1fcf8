package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"snaptale/pkg/domain"
)

const migrateLockID int64 = 84218421

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BookModel{}, &PageModel{}, &ImageModel{}, &PrintOrderModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'page_models'
					AND constraint_name = 'page_models_book_id_fkey'
				) THEN
					ALTER TABLE page_models
					ADD CONSTRAINT page_models_book_id_fkey
					FOREIGN KEY (book_id) REFERENCES book_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'image_models'
					AND constraint_name = 'image_models_page_id_fkey'
				) THEN
					ALTER TABLE image_models
					ADD CONSTRAINT image_models_page_id_fkey
					FOREIGN KEY (page_id) REFERENCES page_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'print_order_models'
					AND constraint_name = 'print_order_models_book_id_fkey'
				) THEN
					ALTER TABLE print_order_models
					ADD CONSTRAINT print_order_models_book_id_fkey
					FOREIGN KEY (book_id) REFERENCES book_models(id);
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_id", "email", "display_name", "password_hash", "role", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByExternalID looks up a user by identity-provider subject.
func (s *GormStore) GetUserByExternalID(externalID string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("external_id = ?", externalID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveBook stores or updates a book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "status", "character_refs", "cover", "print_format", "printed_page_count", "updated_at"}),
	}).Create(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns all books ordered by created_at.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	return s.listBooks("created_at ASC")
}

// ListBooksByUser returns books owned by a user.
func (s *GormStore) ListBooksByUser(userID string) ([]domain.Book, error) {
	return s.listBooks("created_at ASC", "user_id = ?", userID)
}

func (s *GormStore) listBooks(order string, conds ...any) ([]domain.Book, error) {
	var models []BookModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// SetBookStatus updates book status.
func (s *GormStore) SetBookStatus(id string, status domain.BookStatus) error {
	return s.db.Model(&BookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error
}

// SetBookPrintedPageCount records the page count of the generated interior PDF.
func (s *GormStore) SetBookPrintedPageCount(id string, pages int) error {
	return s.db.Model(&BookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"printed_page_count": pages,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// CreatePages inserts all pages of a new book in one transaction.
func (s *GormStore) CreatePages(pages []domain.Page) error {
	if len(pages) == 0 {
		return nil
	}
	models := make([]PageModel, 0, len(pages))
	for _, p := range pages {
		models = append(models, pageToModel(p))
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&models, 100).Error
	})
}

// GetPage retrieves a page.
func (s *GormStore) GetPage(id string) (domain.Page, bool, error) {
	var model PageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Page{}, false, nil
		}
		return domain.Page{}, false, err
	}
	return pageFromModel(model), true, nil
}

// ListPagesByBook returns a book's pages in page-number order.
func (s *GormStore) ListPagesByBook(bookID string) ([]domain.Page, error) {
	var models []PageModel
	if err := s.db.Where("book_id = ?", bookID).
		Order("page_number ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	pages := make([]domain.Page, 0, len(models))
	for _, m := range models {
		pages = append(pages, pageFromModel(m))
	}
	return pages, nil
}

// SavePage stores or updates a page.
func (s *GormStore) SavePage(p domain.Page) error {
	model := pageToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sort_order", "title", "story_text", "spread_type", "updated_at"}),
	}).Create(&model).Error
}

// SaveImage stores or updates an image record.
func (s *GormStore) SaveImage(img domain.Image) error {
	model := imageToModel(img)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"transformed_key", "status", "error_message", "order_index", "updated_at"}),
	}).Create(&model).Error
}

// GetImage retrieves an image record.
func (s *GormStore) GetImage(id string) (domain.Image, bool, error) {
	var model ImageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Image{}, false, nil
		}
		return domain.Image{}, false, err
	}
	return imageFromModel(model), true, nil
}

// ListImagesByPage returns a page's images ordered by order_index.
func (s *GormStore) ListImagesByPage(pageID string) ([]domain.Image, error) {
	var models []ImageModel
	if err := s.db.Where("page_id = ?", pageID).
		Order("order_index ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	images := make([]domain.Image, 0, len(models))
	for _, m := range models {
		images = append(images, imageFromModel(m))
	}
	return images, nil
}

// SetImageStatus updates transform status and result key.
func (s *GormStore) SetImageStatus(id string, status domain.ImageStatus, transformedKey, errMsg string) error {
	updates := map[string]any{
		"status":        string(status),
		"error_message": errMsg,
		"updated_at":    time.Now().UTC(),
	}
	if transformedKey != "" {
		updates["transformed_key"] = transformedKey
	}
	return s.db.Model(&ImageModel{}).Where("id = ?", id).Updates(updates).Error
}

// SaveOrder stores or updates a print order.
func (s *GormStore) SaveOrder(o domain.PrintOrder) error {
	model := orderToModel(o)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_error", "cost_cents", "price_cents", "currency", "shipping", "contact_email", "stripe_session_id", "print_job_id", "updated_at"}),
	}).Create(&model).Error
}

// GetOrder retrieves a print order.
func (s *GormStore) GetOrder(id string) (domain.PrintOrder, bool, error) {
	var model PrintOrderModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.PrintOrder{}, false, nil
		}
		return domain.PrintOrder{}, false, err
	}
	return orderFromModel(model), true, nil
}

// GetOrderByStripeSession looks up an order by checkout session ID.
func (s *GormStore) GetOrderByStripeSession(sessionID string) (domain.PrintOrder, bool, error) {
	var model PrintOrderModel
	if err := s.db.Where("stripe_session_id = ?", sessionID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.PrintOrder{}, false, nil
		}
		return domain.PrintOrder{}, false, err
	}
	return orderFromModel(model), true, nil
}

// ListOrdersByUser returns a user's orders, newest first.
func (s *GormStore) ListOrdersByUser(userID string) ([]domain.PrintOrder, error) {
	var models []PrintOrderModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	orders := make([]domain.PrintOrder, 0, len(models))
	for _, m := range models {
		orders = append(orders, orderFromModel(m))
	}
	return orders, nil
}

// ListOpenOrders returns orders that are submitted but not yet delivered,
// for the vendor status sync loop.
func (s *GormStore) ListOpenOrders() ([]domain.PrintOrder, error) {
	var models []PrintOrderModel
	statuses := []string{
		string(domain.OrderSubmitted),
		string(domain.OrderInProduction),
		string(domain.OrderShipped),
	}
	if err := s.db.Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	orders := make([]domain.PrintOrder, 0, len(models))
	for _, m := range models {
		orders = append(orders, orderFromModel(m))
	}
	return orders, nil
}

// AdvanceOrderStatus conditionally moves an order forward.
func (s *GormStore) AdvanceOrderStatus(id string, from, to domain.OrderStatus, lastError string) (bool, error) {
	if !domain.CanAdvanceOrder(from, to) {
		return false, fmt.Errorf("order status cannot move from %s to %s", from, to)
	}
	res := s.db.Model(&PrintOrderModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetOrderPrintJob records the vendor print-job ID.
func (s *GormStore) SetOrderPrintJob(id string, printJobID string) error {
	return s.db.Model(&PrintOrderModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"print_job_id": printJobID,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		ExternalID:   u.ExternalID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		ExternalID:   m.ExternalID,
		Email:        m.Email,
		DisplayName:  m.DisplayName,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	refs, _ := json.Marshal(b.CharacterRefs)
	cover, _ := json.Marshal(b.Cover)
	return BookModel{
		ID:               b.ID,
		UserID:           b.UserID,
		Title:            b.Title,
		PageCount:        b.PageCount,
		Status:           string(b.Status),
		CharacterRefs:    refs,
		Cover:            cover,
		PrintFormat:      b.PrintFormat,
		PrintedPageCount: b.PrintedPageCount,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	var refs []string
	if len(m.CharacterRefs) > 0 {
		_ = json.Unmarshal(m.CharacterRefs, &refs)
	}
	var cover domain.CoverDesign
	if len(m.Cover) > 0 {
		_ = json.Unmarshal(m.Cover, &cover)
	}
	return domain.Book{
		ID:               m.ID,
		UserID:           m.UserID,
		Title:            m.Title,
		PageCount:        m.PageCount,
		Status:           domain.BookStatus(m.Status),
		CharacterRefs:    refs,
		Cover:            cover,
		PrintFormat:      m.PrintFormat,
		PrintedPageCount: m.PrintedPageCount,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func pageToModel(p domain.Page) PageModel {
	return PageModel{
		ID:         p.ID,
		BookID:     p.BookID,
		PageNumber: p.PageNumber,
		SortOrder:  p.SortOrder,
		Title:      p.Title,
		StoryText:  p.StoryText,
		SpreadType: p.SpreadType,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func pageFromModel(m PageModel) domain.Page {
	return domain.Page{
		ID:         m.ID,
		BookID:     m.BookID,
		PageNumber: m.PageNumber,
		SortOrder:  m.SortOrder,
		Title:      m.Title,
		StoryText:  m.StoryText,
		SpreadType: m.SpreadType,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func imageToModel(i domain.Image) ImageModel {
	return ImageModel{
		ID:             i.ID,
		PageID:         i.PageID,
		OriginalKey:    i.OriginalKey,
		TransformedKey: i.TransformedKey,
		Status:         string(i.Status),
		ErrorMessage:   i.ErrorMessage,
		OrderIndex:     i.OrderIndex,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}

func imageFromModel(m ImageModel) domain.Image {
	return domain.Image{
		ID:             m.ID,
		PageID:         m.PageID,
		OriginalKey:    m.OriginalKey,
		TransformedKey: m.TransformedKey,
		Status:         domain.ImageStatus(m.Status),
		ErrorMessage:   m.ErrorMessage,
		OrderIndex:     m.OrderIndex,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func orderToModel(o domain.PrintOrder) PrintOrderModel {
	shipping, _ := json.Marshal(o.Shipping)
	return PrintOrderModel{
		ID:              o.ID,
		BookID:          o.BookID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		LastError:       o.LastError,
		CostCents:       o.CostCents,
		PriceCents:      o.PriceCents,
		Currency:        o.Currency,
		Shipping:        shipping,
		ContactEmail:    o.ContactEmail,
		StripeSessionID: o.StripeSessionID,
		PrintJobID:      o.PrintJobID,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func orderFromModel(m PrintOrderModel) domain.PrintOrder {
	var shipping domain.ShippingAddress
	if len(m.Shipping) > 0 {
		_ = json.Unmarshal(m.Shipping, &shipping)
	}
	return domain.PrintOrder{
		ID:              m.ID,
		BookID:          m.BookID,
		UserID:          m.UserID,
		Status:          domain.OrderStatus(m.Status),
		LastError:       m.LastError,
		CostCents:       m.CostCents,
		PriceCents:      m.PriceCents,
		Currency:        m.Currency,
		Shipping:        shipping,
		ContactEmail:    m.ContactEmail,
		StripeSessionID: m.StripeSessionID,
		PrintJobID:      m.PrintJobID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
