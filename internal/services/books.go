// books.go
//
// A library catalog and lending service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of librarydb.
// librarydb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// librarydb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with librarydb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/storage"
	"github.com/localnerve/librarydb/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetBook returns one catalog card
func (c *Catalog) GetBook(ctx context.Context, id uint) (*BookView, error) {
	db := quiet(c.DB.WithContext(ctx))

	var views []BookView
	if err := bookViews(db).Where("b.id = ?", id).Scan(&views).Error; err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("%w: book %d does not exist", ErrNotFound, id)
	}
	if err := attachAuthors(db, views); err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListBooks returns every book, or the books of one section, in id order
func (c *Catalog) ListBooks(ctx context.Context, section *uint) ([]BookView, error) {
	if section != nil {
		if _, err := c.GetSection(ctx, *section); err != nil {
			return nil, err
		}
	}

	db := quiet(c.DB.WithContext(ctx))
	q := bookViews(db)
	if section != nil {
		q = inSection(q, *section)
	}

	views := make([]BookView, 0)
	if err := q.Order("b.id").Scan(&views).Error; err != nil {
		return nil, err
	}
	if err := attachAuthors(db, views); err != nil {
		return nil, err
	}
	return views, nil
}

func validateBookInput(in *BookInput) error {
	var err error
	if in.ISBN, err = requireText("isbn", in.ISBN, maxISBN); err != nil {
		return err
	}
	if in.Name, err = requireText("book name", in.Name, maxBookName); err != nil {
		return err
	}
	if in.Publisher, err = requireText("publisher", in.Publisher, maxPublisher); err != nil {
		return err
	}
	if in.PageCount < 1 {
		return invalid("page count must be a positive number")
	}
	if in.Volume < 0 {
		return invalid("volume cannot be negative")
	}
	if in.Price.IsNegative() {
		return invalid("price cannot be negative")
	}
	in.Authors, err = cleanAuthors(in.Authors)
	return err
}

func validateBookPatch(p *BookPatch) error {
	var err error
	if p.ISBN != nil {
		v, err := requireText("isbn", *p.ISBN, maxISBN)
		if err != nil {
			return err
		}
		p.ISBN = &v
	}
	if p.Name != nil {
		v, err := requireText("book name", *p.Name, maxBookName)
		if err != nil {
			return err
		}
		p.Name = &v
	}
	if p.Publisher != nil {
		v, err := requireText("publisher", *p.Publisher, maxPublisher)
		if err != nil {
			return err
		}
		p.Publisher = &v
	}
	if p.PageCount != nil && *p.PageCount < 1 {
		return invalid("page count must be a positive number")
	}
	if p.Volume != nil && *p.Volume < 0 {
		return invalid("volume cannot be negative")
	}
	if p.Price != nil && p.Price.IsNegative() {
		return invalid("price cannot be negative")
	}
	if p.Authors != nil {
		p.Authors, err = cleanAuthors(p.Authors)
	}
	return err
}

func cleanAuthors(names []string) ([]string, error) {
	authors := types.CleanNames(names)
	if len(authors) == 0 {
		return nil, invalid("at least one author is required")
	}
	for _, a := range authors {
		if utf8.RuneCountInString(a) > maxAuthorName {
			return nil, invalid("author name %q must be at most %d characters", a, maxAuthorName)
		}
	}
	return authors, nil
}

// contentName validates an uploaded file name and returns its stored name
func contentName(up Upload) (string, error) {
	name := storage.SanitizeFilename(up.Filename)
	if name == "" || up.Content == nil {
		return "", invalid("a book file is required")
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return "", invalid("only PDF files are accepted")
	}
	return name, nil
}

// contentFree fails with a conflict when name is stored for another book, or stored for no book at all
func (c *Catalog) contentFree(tx *gorm.DB, name string, owner uint) error {
	var holder models.Book
	err := tx.Select("id", "name").Where("content_ref = ?", storage.Ref(name)).First(&holder).Error
	switch {
	case err == nil:
		if holder.ID == owner {
			return nil
		}
		return fmt.Errorf("%w: file %s is already stored for book %d (%s)", ErrConflict, name, holder.ID, holder.Name)
	case !isNotFound(err):
		return err
	}

	exists, err := c.Files.Exists(name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: file %s is already stored but belongs to no book (orphan file), rename the upload", ErrConflict, name)
	}
	return nil
}

func isbnFree(tx *gorm.DB, isbn string, self uint) error {
	var count int64
	if err := tx.Model(&models.Book{}).Where("isbn = ? AND id <> ?", isbn, self).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: a book with isbn %s already exists", ErrConflict, isbn)
	}
	return nil
}

// replaceAuthors swaps the credits of a book for names, in order
func replaceAuthors(tx *gorm.DB, bookID uint, names []string) error {
	if err := tx.Where("book_id = ?", bookID).Delete(&models.Author{}).Error; err != nil {
		return err
	}
	authors := make([]models.Author, len(names))
	for i, name := range names {
		authors[i] = models.Author{
			BookID:      bookID,
			AuthorName:  name,
			Position:    i,
			SearchToken: AuthorToken(name),
		}
	}
	if err := tx.Create(&authors).Error; err != nil {
		return fmt.Errorf("failed to store authors of book %d: %w", bookID, err)
	}
	return nil
}

// CreateBook adds a book with its authors and stores its content.
// Nothing is kept unless every step succeeds.
func (c *Catalog) CreateBook(ctx context.Context, who Identity, in BookInput, up Upload) (*BookView, error) {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return nil, err
	}
	if err := validateBookInput(&in); err != nil {
		return nil, err
	}
	name, err := contentName(up)
	if err != nil {
		return nil, err
	}

	var book models.Book
	saved := false
	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sectionID, sectionName, err := resolveSection(tx, in.SectionID)
		if err != nil {
			return err
		}
		if err := isbnFree(tx, in.ISBN, 0); err != nil {
			return err
		}
		if err := c.contentFree(tx, name, 0); err != nil {
			return err
		}

		book = models.Book{
			ISBN:        in.ISBN,
			Name:        in.Name,
			PageCount:   in.PageCount,
			ContentRef:  storage.Ref(name),
			Publisher:   in.Publisher,
			Volume:      in.Volume,
			Price:       in.Price,
			SectionID:   sectionID,
			SearchToken: BookToken(in.ISBN, in.Name, in.Publisher, sectionName, in.Volume, in.PageCount),
		}
		if err := tx.Omit(clause.Associations).Create(&book).Error; err != nil {
			return err
		}
		if err := replaceAuthors(tx, book.ID, in.Authors); err != nil {
			return err
		}

		if err := c.Files.Save(name, up.Content); err != nil {
			return err
		}
		saved = true
		return nil
	})
	if err != nil {
		if saved {
			if rmErr := c.Files.Remove(name); rmErr != nil {
				c.Log.Error("Failed to remove content of rolled back book", zap.String("file", name), zap.Error(rmErr))
			}
		}
		return nil, duplicate(err, "isbn %s or file %s is already stored", in.ISBN, name)
	}

	c.Log.Info("Book created",
		zap.Uint("book_id", book.ID),
		zap.String("isbn", book.ISBN),
		zap.String("by", who.Username),
	)
	publish(ctx, c.Events, c.Log, events.CatalogBookCreated, map[string]interface{}{
		"book_id":    book.ID,
		"isbn":       book.ISBN,
		"section_id": book.SectionIDOrUnassigned(),
	})

	return c.GetBook(ctx, book.ID)
}

// UpdateBook applies a patch and, when given, replaces the stored content
func (c *Catalog) UpdateBook(ctx context.Context, who Identity, id uint, patch BookPatch, up *Upload) (*BookView, error) {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return nil, err
	}
	if err := validateBookPatch(&patch); err != nil {
		return nil, err
	}
	var name string
	if up != nil {
		var err error
		if name, err = contentName(*up); err != nil {
			return nil, err
		}
	}

	var book models.Book
	var oldName string
	saved := false
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, id).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: book %d does not exist", ErrNotFound, id)
			}
			return err
		}
		oldName = storage.NameFromRef(book.ContentRef)

		if patch.ISBN != nil && *patch.ISBN != book.ISBN {
			if err := isbnFree(tx, *patch.ISBN, book.ID); err != nil {
				return err
			}
			book.ISBN = *patch.ISBN
		}
		if patch.Name != nil {
			book.Name = *patch.Name
		}
		if patch.Publisher != nil {
			book.Publisher = *patch.Publisher
		}
		if patch.PageCount != nil {
			book.PageCount = *patch.PageCount
		}
		if patch.Volume != nil {
			book.Volume = *patch.Volume
		}
		if patch.Price != nil {
			book.Price = *patch.Price
		}

		sectionRef := book.SectionIDOrUnassigned()
		if patch.SectionID != nil {
			sectionRef = *patch.SectionID
		}
		sectionID, sectionName, err := resolveSection(tx, sectionRef)
		if err != nil {
			return err
		}
		book.SectionID = sectionID

		if up != nil {
			if err := c.contentFree(tx, name, book.ID); err != nil {
				return err
			}
			book.ContentRef = storage.Ref(name)
		}

		book.SearchToken = BookToken(book.ISBN, book.Name, book.Publisher, sectionName, book.Volume, book.PageCount)
		if err := tx.Omit(clause.Associations).Save(&book).Error; err != nil {
			return err
		}

		if patch.Authors != nil {
			if err := replaceAuthors(tx, book.ID, patch.Authors); err != nil {
				return err
			}
		}

		if up != nil {
			if err := c.Files.Save(name, up.Content); err != nil {
				return err
			}
			saved = true
		}
		return nil
	})
	if err != nil {
		if saved && name != oldName {
			if rmErr := c.Files.Remove(name); rmErr != nil {
				c.Log.Error("Failed to remove content of rolled back edit", zap.String("file", name), zap.Error(rmErr))
			}
		}
		return nil, duplicate(err, "isbn %s or file %s is already stored", book.ISBN, name)
	}

	if up != nil && name != oldName {
		if err := c.Files.Remove(oldName); err != nil {
			c.Log.Warn("Failed to remove replaced content", zap.String("file", oldName), zap.Error(err))
		}
	}

	c.Log.Info("Book updated", zap.Uint("book_id", book.ID), zap.String("by", who.Username))
	publish(ctx, c.Events, c.Log, events.CatalogBookUpdated, map[string]interface{}{
		"book_id":    book.ID,
		"isbn":       book.ISBN,
		"section_id": book.SectionIDOrUnassigned(),
	})

	return c.GetBook(ctx, book.ID)
}

// DeleteBook removes a book with its authors, requests, issues, feedback and purchases,
// then its stored content
func (c *Catalog) DeleteBook(ctx context.Context, who Identity, id uint) error {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return err
	}

	var book models.Book
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, id).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: book %d does not exist", ErrNotFound, id)
			}
			return err
		}

		for _, dependent := range []interface{}{
			&models.Author{},
			&models.BookRequest{},
			&models.BookIssue{},
			&models.BookFeedback{},
			&models.Purchase{},
		} {
			if err := tx.Where("book_id = ?", id).Delete(dependent).Error; err != nil {
				return err
			}
		}

		return tx.Omit(clause.Associations).Delete(&book).Error
	})
	if err != nil {
		return err
	}

	if err := c.Files.Remove(storage.NameFromRef(book.ContentRef)); err != nil {
		c.Log.Warn("Failed to remove content of deleted book", zap.Uint("book_id", id), zap.Error(err))
	}

	c.Log.Info("Book deleted", zap.Uint("book_id", id), zap.String("by", who.Username))
	publish(ctx, c.Events, c.Log, events.CatalogBookDeleted, map[string]interface{}{
		"book_id": id,
		"isbn":    book.ISBN,
	})
	return nil
}

// BookStatus lists the pending requests and active loans of a book
func (c *Catalog) BookStatus(ctx context.Context, who Identity, id uint) (*BookStatus, error) {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return nil, err
	}

	book, err := c.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	db := quiet(c.DB.WithContext(ctx))
	status := &BookStatus{Book: *book, Requests: make([]RequestView, 0), Issues: make([]IssueView, 0)}
	if err := requestViews(db).Where("r.book_id = ?", id).Order("r.user_id").Scan(&status.Requests).Error; err != nil {
		return nil, err
	}
	if err := issueViews(db).Where("i.book_id = ?", id).Order("i.user_id").Scan(&status.Issues).Error; err != nil {
		return nil, err
	}
	return status, nil
}

// Stats returns the librarian dashboard counts
func (c *Catalog) Stats(ctx context.Context, who Identity) (*Stats, error) {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return nil, err
	}

	db := quiet(c.DB.WithContext(ctx))
	var stats Stats
	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{&models.Section{}, &stats.Sections},
		{&models.Book{}, &stats.Books},
		{&models.BookRequest{}, &stats.Requests},
		{&models.BookIssue{}, &stats.Issues},
	}
	for _, count := range counts {
		if err := db.Model(count.model).Count(count.dest).Error; err != nil {
			return nil, err
		}
	}
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleGeneral).Count(&stats.GeneralUsers).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
