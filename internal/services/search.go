package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/localnerve/librarydb/internal/metrics"
	"github.com/localnerve/librarydb/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// SearchEngine answers catalog searches against the stored search tokens
type SearchEngine struct {
	DB  *gorm.DB
	Log *zap.Logger
}

// NewSearchEngine creates a search engine over db
func NewSearchEngine(db *gorm.DB, log *zap.Logger) *SearchEngine {
	return &SearchEngine{DB: db, Log: log}
}

// searchPass is one token lookup; passes run in precedence order
type searchPass struct {
	name  string
	query func(db *gorm.DB, pattern string) *gorm.DB
}

var searchPasses = []searchPass{
	{"search:book", func(db *gorm.DB, pattern string) *gorm.DB {
		return bookViews(db).
			Where("b.search_token LIKE ? ESCAPE '"+likeEscape+"'", pattern)
	}},
	{"search:author", func(db *gorm.DB, pattern string) *gorm.DB {
		return bookViews(db).
			Where("b.id IN (?)", db.Table("book_authors").
				Select("book_id").
				Where("search_token LIKE ? ESCAPE '"+likeEscape+"'", pattern))
	}},
	{"search:section", func(db *gorm.DB, pattern string) *gorm.DB {
		return bookViews(db).
			Where("s.search_token LIKE ? ESCAPE '"+likeEscape+"'", pattern)
	}},
}

// Search returns every book whose own, author or section token contains query.
// Results keep pass order (book, author, section), each ordered by book id, and a
// book appears once, attributed to the first pass that found it. A nil section
// searches the whole catalog; UnassignedSectionID restricts to unshelved books.
func (s *SearchEngine) Search(ctx context.Context, query string, section *uint) ([]BookView, error) {
	db := quiet(s.DB.WithContext(ctx))
	pattern := containsPattern(query, db.Dialector.Name())

	seen := make(map[uint]struct{})
	results := make([]BookView, 0)

	for _, pass := range searchPasses {
		q := pass.query(db, pattern).Clauses(hints.Comment("select", pass.name))
		if section != nil {
			q = inSection(q, *section)
		}

		var found []BookView
		if err := q.Order("b.id").Scan(&found).Error; err != nil {
			s.Log.Error("Search pass failed", zap.String("pass", pass.name), zap.Error(err))
			return nil, fmt.Errorf("search failed: %w", err)
		}

		for _, book := range found {
			if _, dup := seen[book.ID]; dup {
				continue
			}
			seen[book.ID] = struct{}{}
			results = append(results, book)
		}
	}

	if err := attachAuthors(db, results); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	metrics.SearchResults.Observe(float64(len(results)))
	return results, nil
}

// SearchSections returns the sections whose token contains query, ordered by id.
// The Unassigned section matches like any other section.
func (s *SearchEngine) SearchSections(ctx context.Context, query string) ([]SectionView, error) {
	db := quiet(s.DB.WithContext(ctx))
	pattern := containsPattern(query, db.Dialector.Name())

	var sections []models.Section
	if err := db.Clauses(hints.Comment("select", "search:sections")).
		Where("search_token LIKE ? ESCAPE '"+likeEscape+"'", pattern).
		Order("id").
		Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("section search failed: %w", err)
	}

	views := make([]SectionView, 0, len(sections)+1)
	if strings.Contains(SectionToken(models.UnassignedSectionName, ""), Normalize(query)) {
		views = append(views, unassignedSection())
	}
	for i := range sections {
		views = append(views, sectionView(&sections[i]))
	}
	return views, nil
}
