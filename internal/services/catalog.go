package services

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Field limits of the catalog tables
const (
	maxSectionName        = 20
	maxSectionDescription = 100
	maxISBN               = 13
	maxBookName           = 100
	maxPublisher          = 100
	maxAuthorName         = 40
)

// Catalog owns sections, books and their authors. Every write keeps the search
// tokens current inside the same transaction.
type Catalog struct {
	DB     *gorm.DB
	Files  *storage.FileStore
	Events events.Publisher
	Log    *zap.Logger
	Now    func() time.Time
}

// NewCatalog creates a catalog store
func NewCatalog(db *gorm.DB, files *storage.FileStore, publisher events.Publisher, log *zap.Logger) *Catalog {
	return &Catalog{DB: db, Files: files, Events: publisher, Log: log, Now: time.Now}
}

// SectionInput is a new section
type SectionInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SectionPatch changes the given section fields
type SectionPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// BookInput is a new book
type BookInput struct {
	ISBN      string
	Name      string
	Publisher string
	PageCount int
	Volume    int
	Price     models.Price
	SectionID uint
	Authors   []string
}

// BookPatch changes the given book fields. Authors, when not nil, replace the credits wholesale.
type BookPatch struct {
	ISBN      *string
	Name      *string
	Publisher *string
	PageCount *int
	Volume    *int
	Price     *models.Price
	SectionID *uint
	Authors   []string
}

// Upload is book content submitted with a create or edit
type Upload struct {
	Filename string
	Content  io.Reader
}

// Stats are the librarian dashboard counts
type Stats struct {
	Sections     int64 `json:"sections"`
	Books        int64 `json:"books"`
	Requests     int64 `json:"requests"`
	Issues       int64 `json:"issues"`
	GeneralUsers int64 `json:"general_users"`
}

// BookStatus is a book with its current requests and loans
type BookStatus struct {
	Book     BookView      `json:"book"`
	Requests []RequestView `json:"requests"`
	Issues   []IssueView   `json:"issues"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

func requireText(field, value string, limit int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid("%s is required", field)
	}
	if utf8.RuneCountInString(value) > limit {
		return "", invalid("%s must be at most %d characters", field, limit)
	}
	return value, nil
}

func optionalText(field, value string, limit int) (string, error) {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > limit {
		return "", invalid("%s must be at most %d characters", field, limit)
	}
	return value, nil
}
