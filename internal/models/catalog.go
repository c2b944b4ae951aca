package models

import "gorm.io/datatypes"

const (
	// UnassignedSectionID is the sentinel section of books without a shelf.
	// It is never stored; books in it carry a NULL section_id.
	UnassignedSectionID uint = 0
	// UnassignedSectionName is the display name of the sentinel section
	UnassignedSectionName = "Unassigned"
)

// Section is a shelving category
type Section struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string         `gorm:"uniqueIndex;size:20;not null" json:"name"`
	Description string         `gorm:"size:100;not null;default:''" json:"description"`
	DateCreated datatypes.Date `gorm:"not null" json:"date_created"`
	SearchToken string         `gorm:"size:150;not null" json:"-"`
}

// Book is a catalog entry with its stored content
type Book struct {
	ID          uint     `gorm:"primaryKey;autoIncrement"`
	ISBN        string   `gorm:"column:isbn;uniqueIndex;size:13;not null"`
	Name        string   `gorm:"size:100;not null"`
	PageCount   int      `gorm:"not null"`
	ContentRef  string   `gorm:"uniqueIndex;size:255;not null"`
	Publisher   string   `gorm:"size:100;not null"`
	Volume      int      `gorm:"not null;default:0"`
	Price       Price    `gorm:"not null;default:0"`
	SectionID   *uint    `gorm:"index"`
	SearchToken string   `gorm:"size:500;not null"`
	Authors     []Author `gorm:"foreignKey:BookID"`
}

// SectionIDOrUnassigned returns the section id, mapping NULL to the Unassigned sentinel
func (b *Book) SectionIDOrUnassigned() uint {
	if b.SectionID == nil {
		return UnassignedSectionID
	}
	return *b.SectionID
}

// Author is one credited author of a book, in display order
type Author struct {
	BookID      uint   `gorm:"primaryKey;autoIncrement:false"`
	AuthorName  string `gorm:"primaryKey;size:40"`
	Position    int    `gorm:"not null;default:0"`
	SearchToken string `gorm:"size:40;not null;index"`
}

// TableName overrides the table name for Section
func (Section) TableName() string {
	return "sections"
}

// TableName overrides the table name for Book
func (Book) TableName() string {
	return "books"
}

// TableName overrides the table name for Author
func (Author) TableName() string {
	return "book_authors"
}
