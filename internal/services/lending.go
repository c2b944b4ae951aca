package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/metrics"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lending rules
const (
	// MaxHoldings bounds the requests plus issues a user may hold at once
	MaxHoldings = 5
	// MinIssueDays and MaxIssueDays bound the loan length of a request
	MinIssueDays = 1
	MaxIssueDays = 7
	// DefaultIssueDays applies when a request names no loan length
	DefaultIssueDays = 7

	maxFeedback = 500
	minRating   = 1
	maxRating   = 5
)

// Transition names, used as metric labels
const (
	transitionRequested = "requested"
	transitionIssued    = "issued"
	transitionRejected  = "rejected"
	transitionReturned  = "returned"
	transitionRevoked   = "revoked"
	transitionExpired   = "expired"
	transitionFeedback  = "feedback"
	transitionPurchased = "purchased"
)

// Lending drives the per (book, user) lifecycle: requested, issued, then back to none
// by return, revoke or expiry. Each transition is one read-check-write transaction.
type Lending struct {
	DB     *gorm.DB
	Files  *storage.FileStore
	Events events.Publisher
	Log    *zap.Logger
	Now    func() time.Time
}

// NewLending creates the lending lifecycle
func NewLending(db *gorm.DB, files *storage.FileStore, publisher events.Publisher, log *zap.Logger) *Lending {
	return &Lending{DB: db, Files: files, Events: publisher, Log: log, Now: time.Now}
}

// refuse counts a guard failure by its error class
func refuse(err error) error {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		metrics.Refusal("quota")
	case errors.Is(err, ErrConflict):
		metrics.Refusal("conflict")
	case errors.Is(err, ErrNotFound):
		metrics.Refusal("not_found")
	case errors.Is(err, ErrForbidden):
		metrics.Refusal("forbidden")
	case errors.Is(err, ErrValidation):
		metrics.Refusal("validation")
	}
	return err
}

func (l *Lending) committed(ctx context.Context, transition, eventType string, payload map[string]interface{}) {
	metrics.Transition(transition)
	l.Log.Info("Lending transition", zap.String("transition", transition), zap.Any("details", payload))
	publish(ctx, l.Events, l.Log, eventType, payload)
}

// lockUser takes the row lock that serializes the lending writes of one user
func lockUser(tx *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: user %d does not exist", ErrNotFound, userID)
		}
		return nil, err
	}
	return &user, nil
}

func bookExists(tx *gorm.DB, bookID uint) error {
	var count int64
	if err := tx.Model(&models.Book{}).Where("id = ?", bookID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: book %d does not exist", ErrNotFound, bookID)
	}
	return nil
}

// findPair loads the record of model for (book, user); found is false when there is none
func findPair(tx *gorm.DB, dest interface{}, bookID, userID uint) (bool, error) {
	err := tx.Where("book_id = ? AND user_id = ?", bookID, userID).First(dest).Error
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// RequestBook records a borrow intent of the caller for a book
func (l *Lending) RequestBook(ctx context.Context, who Identity, bookID uint, issueDays int) (*models.BookRequest, error) {
	if err := who.Require(models.RoleGeneral); err != nil {
		return nil, refuse(err)
	}
	if issueDays < MinIssueDays || issueDays > MaxIssueDays {
		return nil, refuse(invalid("issue time must be between %d and %d days", MinIssueDays, MaxIssueDays))
	}

	request := models.BookRequest{
		BookID:        bookID,
		UserID:        who.UserID,
		DateOfRequest: day(l.Now()),
		IssueTime:     issueDays,
	}

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUser(tx, who.UserID); err != nil {
			return err
		}
		if err := bookExists(tx, bookID); err != nil {
			return err
		}

		requested, err := findPair(tx, &models.BookRequest{}, bookID, who.UserID)
		if err != nil {
			return err
		}
		if requested {
			return fmt.Errorf("%w: book %d is already requested", ErrConflict, bookID)
		}
		issued, err := findPair(tx, &models.BookIssue{}, bookID, who.UserID)
		if err != nil {
			return err
		}
		if issued {
			return fmt.Errorf("%w: book %d is already issued to you", ErrConflict, bookID)
		}

		held, err := holdings(tx, who.UserID)
		if err != nil {
			return err
		}
		if held >= MaxHoldings {
			return fmt.Errorf("%w: you can only request or hold %d books at once", ErrQuotaExceeded, MaxHoldings)
		}

		return tx.Create(&request).Error
	})
	if err != nil {
		return nil, refuse(duplicate(err, "book %d is already requested", bookID))
	}

	l.committed(ctx, transitionRequested, events.LendingRequested, map[string]interface{}{
		"book_id":    bookID,
		"user_id":    who.UserID,
		"issue_time": issueDays,
	})
	return &request, nil
}

// holdings counts the requests and issues of a user
func holdings(tx *gorm.DB, userID uint) (int64, error) {
	var requests, issues int64
	if err := tx.Model(&models.BookRequest{}).Where("user_id = ?", userID).Count(&requests).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&models.BookIssue{}).Where("user_id = ?", userID).Count(&issues).Error; err != nil {
		return 0, err
	}
	return requests + issues, nil
}

// IssueBook turns the pending request of userID for a book into a loan
func (l *Lending) IssueBook(ctx context.Context, who Identity, bookID, userID uint) (*models.BookIssue, error) {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return nil, refuse(err)
	}

	var issue models.BookIssue
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUser(tx, userID); err != nil {
			return err
		}

		var request models.BookRequest
		requested, err := findPair(tx, &request, bookID, userID)
		if err != nil {
			return err
		}
		if !requested {
			return fmt.Errorf("%w: user %d has no request for book %d", ErrNotFound, userID, bookID)
		}
		issued, err := findPair(tx, &models.BookIssue{}, bookID, userID)
		if err != nil {
			return err
		}
		if issued {
			return fmt.Errorf("%w: book %d is already issued to user %d", ErrConflict, bookID, userID)
		}

		if err := tx.Where("book_id = ? AND user_id = ?", bookID, userID).Delete(&models.BookRequest{}).Error; err != nil {
			return err
		}

		today := day(l.Now())
		issue = models.BookIssue{
			BookID:       bookID,
			UserID:       userID,
			DateOfIssue:  today,
			DateOfReturn: addDays(today, request.IssueTime),
		}
		return tx.Create(&issue).Error
	})
	if err != nil {
		return nil, refuse(err)
	}

	l.committed(ctx, transitionIssued, events.LendingIssued, map[string]interface{}{
		"book_id":        bookID,
		"user_id":        userID,
		"date_of_return": time.Time(issue.DateOfReturn).Format(time.DateOnly),
		"by":             who.Username,
	})
	return &issue, nil
}

// RejectRequest drops the pending request of userID for a book
func (l *Lending) RejectRequest(ctx context.Context, who Identity, bookID, userID uint) error {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return refuse(err)
	}

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("book_id = ? AND user_id = ?", bookID, userID).Delete(&models.BookRequest{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: user %d has no request for book %d", ErrNotFound, userID, bookID)
		}
		return nil
	})
	if err != nil {
		return refuse(err)
	}

	l.committed(ctx, transitionRejected, events.LendingRejected, map[string]interface{}{
		"book_id": bookID,
		"user_id": userID,
		"by":      who.Username,
	})
	return nil
}

// ReturnBook ends the caller's own loan of a book
func (l *Lending) ReturnBook(ctx context.Context, who Identity, bookID uint) error {
	if err := who.Require(models.RoleGeneral); err != nil {
		return refuse(err)
	}

	if err := l.endIssue(ctx, bookID, who.UserID); err != nil {
		return refuse(err)
	}

	l.committed(ctx, transitionReturned, events.LendingReturned, map[string]interface{}{
		"book_id": bookID,
		"user_id": who.UserID,
	})
	return nil
}

// RevokeIssue ends the loan of a book to userID without a return
func (l *Lending) RevokeIssue(ctx context.Context, who Identity, bookID, userID uint) error {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return refuse(err)
	}

	if err := l.endIssue(ctx, bookID, userID); err != nil {
		return refuse(err)
	}

	l.committed(ctx, transitionRevoked, events.LendingRevoked, map[string]interface{}{
		"book_id": bookID,
		"user_id": userID,
		"by":      who.Username,
	})
	return nil
}

func (l *Lending) endIssue(ctx context.Context, bookID, userID uint) error {
	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("book_id = ? AND user_id = ?", bookID, userID).Delete(&models.BookIssue{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: book %d is not issued to user %d", ErrNotFound, bookID, userID)
		}
		return nil
	})
}

// SubmitFeedback stores the caller's review of a book, replacing any earlier one
func (l *Lending) SubmitFeedback(ctx context.Context, who Identity, bookID uint, text string, rating int) (*models.BookFeedback, error) {
	if err := who.Require(models.RoleGeneral); err != nil {
		return nil, refuse(err)
	}
	text, err := requireText("feedback", text, maxFeedback)
	if err != nil {
		return nil, refuse(err)
	}
	if rating < minRating || rating > maxRating {
		return nil, refuse(invalid("rating must be between %d and %d", minRating, maxRating))
	}

	feedback := models.BookFeedback{BookID: bookID, UserID: who.UserID, Feedback: text, Rating: rating}
	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bookExists(tx, bookID); err != nil {
			return err
		}
		if err := tx.Where("book_id = ? AND user_id = ?", bookID, who.UserID).Delete(&models.BookFeedback{}).Error; err != nil {
			return err
		}
		return tx.Create(&feedback).Error
	})
	if err != nil {
		return nil, refuse(duplicate(err, "feedback for book %d was submitted concurrently", bookID))
	}

	l.committed(ctx, transitionFeedback, events.LendingFeedback, map[string]interface{}{
		"book_id": bookID,
		"user_id": who.UserID,
		"rating":  rating,
	})
	return &feedback, nil
}

// ListIssues returns the loans of userID after dropping the ones past their return date.
// General users may only list their own loans.
func (l *Lending) ListIssues(ctx context.Context, who Identity, userID uint) ([]IssueView, error) {
	if err := who.Require(models.RoleGeneral, models.RoleLibrarian); err != nil {
		return nil, err
	}
	if who.Role == models.RoleGeneral && userID != who.UserID {
		return nil, fmt.Errorf("%w: you can only list your own issued books", ErrForbidden)
	}

	today := day(l.Now())
	var expired []models.BookIssue
	views := make([]IssueView, 0)

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var issues []models.BookIssue
		if err := tx.Where("user_id = ?", userID).Find(&issues).Error; err != nil {
			return err
		}
		for _, issue := range issues {
			if !dayBefore(issue.DateOfReturn, today) {
				continue
			}
			if err := tx.Where("book_id = ? AND user_id = ?", issue.BookID, issue.UserID).Delete(&models.BookIssue{}).Error; err != nil {
				return err
			}
			expired = append(expired, issue)
		}

		return issueViews(tx).Where("i.user_id = ?", userID).Order("i.date_of_issue, i.book_id").Scan(&views).Error
	})
	if err != nil {
		return nil, err
	}

	for _, issue := range expired {
		l.committed(ctx, transitionExpired, events.LendingExpired, map[string]interface{}{
			"book_id":        issue.BookID,
			"user_id":        issue.UserID,
			"date_of_return": time.Time(issue.DateOfReturn).Format(time.DateOnly),
		})
	}
	return views, nil
}

// ListRequests returns every pending request for librarians and the caller's own otherwise
func (l *Lending) ListRequests(ctx context.Context, who Identity) ([]RequestView, error) {
	if err := who.Require(models.RoleGeneral, models.RoleLibrarian); err != nil {
		return nil, err
	}

	q := requestViews(quiet(l.DB.WithContext(ctx)))
	if who.Role == models.RoleGeneral {
		q = q.Where("r.user_id = ?", who.UserID)
	}

	views := make([]RequestView, 0)
	if err := q.Order("r.date_of_request, r.book_id, r.user_id").Scan(&views).Error; err != nil {
		return nil, err
	}
	return views, nil
}

// ListFeedback returns the reviews of one book, or of every book when bookID is nil
func (l *Lending) ListFeedback(ctx context.Context, who Identity, bookID *uint) ([]FeedbackView, error) {
	if err := who.Require(models.RoleGeneral, models.RoleLibrarian); err != nil {
		return nil, err
	}

	db := quiet(l.DB.WithContext(ctx))
	q := feedbackViews(db)
	if bookID != nil {
		if err := bookExists(db, *bookID); err != nil {
			return nil, err
		}
		q = q.Where("f.book_id = ?", *bookID)
	}

	views := make([]FeedbackView, 0)
	if err := q.Order("f.book_id, f.user_id").Scan(&views).Error; err != nil {
		return nil, err
	}
	return views, nil
}

// PurchaseBook records that the caller bought a book. Buying again keeps the first purchase.
func (l *Lending) PurchaseBook(ctx context.Context, who Identity, bookID uint) (*models.Purchase, bool, error) {
	if err := who.Require(models.RoleGeneral); err != nil {
		return nil, false, err
	}

	var purchase models.Purchase
	created := false
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bookExists(tx, bookID); err != nil {
			return err
		}
		found, err := findPair(tx, &purchase, bookID, who.UserID)
		if err != nil || found {
			return err
		}
		purchase = models.Purchase{BookID: bookID, UserID: who.UserID, BoughtAt: l.Now().UTC()}
		created = true
		return tx.Create(&purchase).Error
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		l.committed(ctx, transitionPurchased, events.LendingPurchased, map[string]interface{}{
			"book_id": bookID,
			"user_id": who.UserID,
		})
	}
	return &purchase, created, nil
}

// Content is an open stored book file
type Content struct {
	io.ReadCloser
	Filename string
}

// OpenContent opens the stored file of a book. Librarians may open any book; general
// users need a purchase or a loan that has not passed its return date.
func (l *Lending) OpenContent(ctx context.Context, who Identity, bookID uint) (*Content, error) {
	if err := who.Require(models.RoleGeneral, models.RoleLibrarian); err != nil {
		return nil, err
	}

	db := quiet(l.DB.WithContext(ctx))
	var book models.Book
	if err := db.Select("id", "content_ref").First(&book, bookID).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: book %d does not exist", ErrNotFound, bookID)
		}
		return nil, err
	}

	if who.Role == models.RoleGeneral {
		allowed, err := l.mayRead(db, bookID, who.UserID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: buy or borrow book %d to read it", ErrForbidden, bookID)
		}
	}

	name := storage.NameFromRef(book.ContentRef)
	f, err := l.Files.Open(name)
	if err != nil {
		l.Log.Error("Stored content missing", zap.Uint("book_id", bookID), zap.String("file", name), zap.Error(err))
		return nil, fmt.Errorf("%w: content of book %d is not available", ErrNotFound, bookID)
	}
	return &Content{ReadCloser: f, Filename: name}, nil
}

func (l *Lending) mayRead(db *gorm.DB, bookID, userID uint) (bool, error) {
	bought, err := findPair(db, &models.Purchase{}, bookID, userID)
	if err != nil || bought {
		return bought, err
	}

	var issue models.BookIssue
	issued, err := findPair(db, &issue, bookID, userID)
	if err != nil || !issued {
		return false, err
	}
	return !dayBefore(issue.DateOfReturn, day(l.Now())), nil
}
