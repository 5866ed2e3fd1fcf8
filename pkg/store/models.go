package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	ExternalID   string `gorm:"index"`
	Email        string `gorm:"uniqueIndex;not null"`
	DisplayName  string
	PasswordHash string
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type BookModel struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	PageCount        int    `gorm:"not null"`
	Status           string `gorm:"not null"`
	CharacterRefs    datatypes.JSON `gorm:"type:jsonb"`
	Cover            datatypes.JSON `gorm:"type:jsonb"`
	PrintFormat      string
	PrintedPageCount int
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type PageModel struct {
	ID         string `gorm:"primaryKey"`
	BookID     string `gorm:"not null;index;uniqueIndex:idx_book_page_number,priority:1"`
	PageNumber int    `gorm:"not null;uniqueIndex:idx_book_page_number,priority:2"`
	SortOrder  int    `gorm:"not null"`
	Title      string
	StoryText  string `gorm:"type:text"`
	SpreadType string
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

type ImageModel struct {
	ID             string `gorm:"primaryKey"`
	PageID         string `gorm:"not null;index"`
	OriginalKey    string `gorm:"not null"`
	TransformedKey string
	Status         string `gorm:"not null"`
	ErrorMessage   string
	OrderIndex     int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

type PrintOrderModel struct {
	ID              string `gorm:"primaryKey"`
	BookID          string `gorm:"not null;index"`
	UserID          string `gorm:"not null;index"`
	Status          string `gorm:"not null;index"`
	LastError       string
	CostCents       int64
	PriceCents      int64
	Currency        string
	Shipping        datatypes.JSON `gorm:"type:jsonb"`
	ContactEmail    string
	StripeSessionID string `gorm:"index"`
	PrintJobID      string
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}
