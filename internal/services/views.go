package services

import (
	"github.com/localnerve/librarydb/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BookView is a catalog card: a book joined with its section name and authors
type BookView struct {
	ID          uint         `gorm:"column:id" json:"id"`
	ISBN        string       `gorm:"column:isbn" json:"isbn"`
	Name        string       `gorm:"column:name" json:"name"`
	PageCount   int          `gorm:"column:page_count" json:"page_count"`
	ContentRef  string       `gorm:"column:content_ref" json:"content"`
	Publisher   string       `gorm:"column:publisher" json:"publisher"`
	Volume      int          `gorm:"column:volume" json:"volume"`
	Price       models.Price `gorm:"column:price" json:"price"`
	SectionID   uint         `gorm:"column:section_id" json:"section_id"`
	SectionName string       `gorm:"column:section_name" json:"section_name"`
	Authors     []string     `gorm:"-" json:"authors"`
}

// SectionView is a section as shown to callers, including the synthetic Unassigned section
type SectionView struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	DateCreated *datatypes.Date `json:"date_created,omitempty"`
}

// bookViewColumns selects a BookView from "books AS b LEFT JOIN sections AS s"
const bookViewColumns = "b.id, b.isbn, b.name, b.page_count, b.content_ref, b.publisher, b.volume, b.price, " +
	"COALESCE(b.section_id, 0) AS section_id, COALESCE(s.name, '" + models.UnassignedSectionName + "') AS section_name"

// bookViews starts a BookView query
func bookViews(db *gorm.DB) *gorm.DB {
	return db.Table("books AS b").
		Select(bookViewColumns).
		Joins("LEFT JOIN sections AS s ON s.id = b.section_id")
}

// inSection constrains a BookView query to a section; 0 is Unassigned
func inSection(q *gorm.DB, sectionID uint) *gorm.DB {
	if sectionID == models.UnassignedSectionID {
		return q.Where("b.section_id IS NULL")
	}
	return q.Where("b.section_id = ?", sectionID)
}

// attachAuthors fills in the author names of each view, in credit order
func attachAuthors(db *gorm.DB, views []BookView) error {
	if len(views) == 0 {
		return nil
	}

	ids := make([]uint, len(views))
	for i := range views {
		ids[i] = views[i].ID
	}

	var authors []models.Author
	if err := db.Where("book_id IN ?", ids).Order("book_id, position").Find(&authors).Error; err != nil {
		return err
	}

	byBook := make(map[uint][]string, len(views))
	for _, a := range authors {
		byBook[a.BookID] = append(byBook[a.BookID], a.AuthorName)
	}
	for i := range views {
		views[i].Authors = byBook[views[i].ID]
		if views[i].Authors == nil {
			views[i].Authors = []string{}
		}
	}
	return nil
}

func sectionView(s *models.Section) SectionView {
	date := s.DateCreated
	return SectionView{ID: s.ID, Name: s.Name, Description: s.Description, DateCreated: &date}
}

func unassignedSection() SectionView {
	return SectionView{ID: models.UnassignedSectionID, Name: models.UnassignedSectionName}
}

// RequestView is a pending request with its book and requester
type RequestView struct {
	BookID        uint           `gorm:"column:book_id" json:"book_id"`
	ISBN          string         `gorm:"column:isbn" json:"isbn"`
	BookName      string         `gorm:"column:book_name" json:"book_name"`
	UserID        uint           `gorm:"column:user_id" json:"user_id"`
	Username      string         `gorm:"column:username" json:"username"`
	DateOfRequest datatypes.Date `gorm:"column:date_of_request" json:"date_of_request"`
	IssueTime     int            `gorm:"column:issue_time" json:"issue_time"`
}

// IssueView is an active loan with its book and borrower
type IssueView struct {
	BookID       uint           `gorm:"column:book_id" json:"book_id"`
	ISBN         string         `gorm:"column:isbn" json:"isbn"`
	BookName     string         `gorm:"column:book_name" json:"book_name"`
	UserID       uint           `gorm:"column:user_id" json:"user_id"`
	Username     string         `gorm:"column:username" json:"username"`
	FirstName    string         `gorm:"column:first_name" json:"first_name"`
	DateOfIssue  datatypes.Date `gorm:"column:date_of_issue" json:"date_of_issue"`
	DateOfReturn datatypes.Date `gorm:"column:date_of_return" json:"date_of_return"`
}

// FeedbackView is one review with its book and author
type FeedbackView struct {
	BookID   uint   `gorm:"column:book_id" json:"book_id"`
	ISBN     string `gorm:"column:isbn" json:"isbn"`
	BookName string `gorm:"column:book_name" json:"book_name"`
	UserID   uint   `gorm:"column:user_id" json:"user_id"`
	Username string `gorm:"column:username" json:"username"`
	Feedback string `gorm:"column:feedback" json:"feedback"`
	Rating   int    `gorm:"column:rating" json:"rating"`
}

func requestViews(db *gorm.DB) *gorm.DB {
	return db.Table("book_requests AS r").
		Select("r.book_id, b.isbn, b.name AS book_name, r.user_id, u.username, r.date_of_request, r.issue_time").
		Joins("JOIN books AS b ON b.id = r.book_id").
		Joins("JOIN users AS u ON u.id = r.user_id")
}

func issueViews(db *gorm.DB) *gorm.DB {
	return db.Table("book_issues AS i").
		Select("i.book_id, b.isbn, b.name AS book_name, i.user_id, u.username, u.first_name, i.date_of_issue, i.date_of_return").
		Joins("JOIN books AS b ON b.id = i.book_id").
		Joins("JOIN users AS u ON u.id = i.user_id")
}

func feedbackViews(db *gorm.DB) *gorm.DB {
	return db.Table("book_feedback AS f").
		Select("f.book_id, b.isbn, b.name AS book_name, f.user_id, u.username, f.feedback, f.rating").
		Joins("JOIN books AS b ON b.id = f.book_id").
		Joins("JOIN users AS u ON u.id = f.user_id")
}
