package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListSections returns the Unassigned section followed by every stored section in id order
func (c *Catalog) ListSections(ctx context.Context) ([]SectionView, error) {
	var sections []models.Section
	if err := quiet(c.DB.WithContext(ctx)).Order("id").Find(&sections).Error; err != nil {
		return nil, err
	}

	views := make([]SectionView, 0, len(sections)+1)
	views = append(views, unassignedSection())
	for i := range sections {
		views = append(views, sectionView(&sections[i]))
	}
	return views, nil
}

// GetSection returns one section; UnassignedSectionID yields the synthetic section
func (c *Catalog) GetSection(ctx context.Context, id uint) (*SectionView, error) {
	if id == models.UnassignedSectionID {
		view := unassignedSection()
		return &view, nil
	}

	var section models.Section
	if err := quiet(c.DB.WithContext(ctx)).First(&section, id).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: section %d does not exist", ErrNotFound, id)
		}
		return nil, err
	}
	view := sectionView(&section)
	return &view, nil
}

// CreateSection adds a section
func (c *Catalog) CreateSection(ctx context.Context, who Identity, in SectionInput) (*SectionView, error) {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return nil, err
	}

	name, err := requireText("section name", in.Name, maxSectionName)
	if err != nil {
		return nil, err
	}
	description, err := optionalText("section description", in.Description, maxSectionDescription)
	if err != nil {
		return nil, err
	}

	section := models.Section{
		Name:        name,
		Description: description,
		DateCreated: day(c.Now()),
		SearchToken: SectionToken(name, description),
	}

	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := sectionNameFree(tx, name, 0); err != nil {
			return err
		}
		return tx.Create(&section).Error
	})
	if err != nil {
		return nil, duplicate(err, "section %s already exists", name)
	}

	c.Log.Info("Section created", zap.Uint("section_id", section.ID), zap.String("by", who.Username))
	publish(ctx, c.Events, c.Log, events.CatalogSectionCreated, map[string]interface{}{
		"section_id": section.ID,
		"name":       section.Name,
	})

	view := sectionView(&section)
	return &view, nil
}

// UpdateSection edits a section. A rename rewrites the tokens of its books.
func (c *Catalog) UpdateSection(ctx context.Context, who Identity, id uint, patch SectionPatch) (*SectionView, error) {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return nil, err
	}
	if id == models.UnassignedSectionID {
		return nil, invalid("the %s section cannot be edited", models.UnassignedSectionName)
	}

	var section models.Section
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&section, id).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: section %d does not exist", ErrNotFound, id)
			}
			return err
		}

		renamed := false
		if patch.Name != nil {
			name, err := requireText("section name", *patch.Name, maxSectionName)
			if err != nil {
				return err
			}
			if name != section.Name {
				if err := sectionNameFree(tx, name, section.ID); err != nil {
					return err
				}
				section.Name = name
				renamed = true
			}
		}
		if patch.Description != nil {
			description, err := optionalText("section description", *patch.Description, maxSectionDescription)
			if err != nil {
				return err
			}
			section.Description = description
		}

		section.SearchToken = SectionToken(section.Name, section.Description)
		if err := tx.Save(&section).Error; err != nil {
			return err
		}

		if renamed {
			var books []models.Book
			if err := tx.Where("section_id = ?", section.ID).Find(&books).Error; err != nil {
				return err
			}
			return retokenBooks(tx, books, &section.ID, section.Name)
		}
		return nil
	})
	if err != nil {
		return nil, duplicate(err, "section %s already exists", section.Name)
	}

	c.Log.Info("Section updated", zap.Uint("section_id", section.ID), zap.String("by", who.Username))
	publish(ctx, c.Events, c.Log, events.CatalogSectionUpdated, map[string]interface{}{
		"section_id": section.ID,
		"name":       section.Name,
	})

	view := sectionView(&section)
	return &view, nil
}

// DeleteSection removes a section and moves its books to Unassigned
func (c *Catalog) DeleteSection(ctx context.Context, who Identity, id uint) error {
	if err := who.Require(models.RoleLibrarian); err != nil {
		return err
	}
	if id == models.UnassignedSectionID {
		return invalid("the %s section cannot be removed", models.UnassignedSectionName)
	}

	var moved int
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var section models.Section
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&section, id).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: section %d does not exist", ErrNotFound, id)
			}
			return err
		}

		var books []models.Book
		if err := tx.Where("section_id = ?", id).Find(&books).Error; err != nil {
			return err
		}
		if err := retokenBooks(tx, books, nil, models.UnassignedSectionName); err != nil {
			return err
		}
		moved = len(books)

		return tx.Delete(&section).Error
	})
	if err != nil {
		return err
	}

	c.Log.Info("Section deleted",
		zap.Uint("section_id", id),
		zap.Int("books_unassigned", moved),
		zap.String("by", who.Username),
	)
	publish(ctx, c.Events, c.Log, events.CatalogSectionDeleted, map[string]interface{}{
		"section_id":       id,
		"books_unassigned": moved,
	})
	return nil
}

// sectionNameFree fails with a conflict when another section already uses name.
// The Unassigned name is always taken.
func sectionNameFree(tx *gorm.DB, name string, self uint) error {
	if strings.EqualFold(name, models.UnassignedSectionName) {
		return fmt.Errorf("%w: section %s already exists", ErrConflict, models.UnassignedSectionName)
	}
	var count int64
	if err := tx.Model(&models.Section{}).Where("name = ? AND id <> ?", name, self).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: section %s already exists", ErrConflict, name)
	}
	return nil
}

// resolveSection returns the stored section id (nil for Unassigned) and the section name
func resolveSection(tx *gorm.DB, id uint) (*uint, string, error) {
	if id == models.UnassignedSectionID {
		return nil, models.UnassignedSectionName, nil
	}
	var section models.Section
	if err := tx.Select("id", "name").First(&section, id).Error; err != nil {
		if isNotFound(err) {
			return nil, "", fmt.Errorf("%w: section %d does not exist", ErrNotFound, id)
		}
		return nil, "", err
	}
	return &section.ID, section.Name, nil
}

// retokenBooks moves books into a section and rebuilds their tokens
func retokenBooks(tx *gorm.DB, books []models.Book, sectionID *uint, sectionName string) error {
	for i := range books {
		b := &books[i]
		token := BookToken(b.ISBN, b.Name, b.Publisher, sectionName, b.Volume, b.PageCount)
		if err := tx.Model(&models.Book{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
			"section_id":   sectionID,
			"search_token": token,
		}).Error; err != nil {
			return fmt.Errorf("failed to rebuild search token of book %d: %w", b.ID, err)
		}
	}
	return nil
}
