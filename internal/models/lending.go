package models

import (
	"time"

	"gorm.io/datatypes"
)

// BookRequest is a pending borrow intent
type BookRequest struct {
	BookID        uint           `gorm:"primaryKey;autoIncrement:false" json:"book_id"`
	UserID        uint           `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	DateOfRequest datatypes.Date `gorm:"not null" json:"date_of_request"`
	IssueTime     int            `gorm:"not null" json:"issue_time"`
}

// BookIssue is an active loan
type BookIssue struct {
	BookID       uint           `gorm:"primaryKey;autoIncrement:false" json:"book_id"`
	UserID       uint           `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	DateOfIssue  datatypes.Date `gorm:"not null" json:"date_of_issue"`
	DateOfReturn datatypes.Date `gorm:"not null" json:"date_of_return"`
}

// BookFeedback is one user's review of a book
type BookFeedback struct {
	BookID   uint   `gorm:"primaryKey;autoIncrement:false" json:"book_id"`
	UserID   uint   `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Feedback string `gorm:"size:500;not null" json:"feedback"`
	Rating   int    `gorm:"not null" json:"rating"`
}

// Purchase records a bought copy of a book's content
type Purchase struct {
	BookID   uint      `gorm:"primaryKey;autoIncrement:false" json:"book_id"`
	UserID   uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	BoughtAt time.Time `gorm:"not null" json:"bought_at"`
}

// TableName overrides the table name for BookRequest
func (BookRequest) TableName() string {
	return "book_requests"
}

// TableName overrides the table name for BookIssue
func (BookIssue) TableName() string {
	return "book_issues"
}

// TableName overrides the table name for BookFeedback
func (BookFeedback) TableName() string {
	return "book_feedback"
}

// TableName overrides the table name for Purchase
func (Purchase) TableName() string {
	return "book_purchases"
}
