package services_test

import (
	"context"
	"testing"

	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchFixture struct {
	env              *testutil.Env
	lib              services.Identity
	fiction, science *services.SectionView

	dune, cosmos, garden, foundation, essays *services.BookView
}

func newSearchFixture(t *testing.T) *searchFixture {
	env := testutil.NewEnv(t)
	f := &searchFixture{env: env, lib: env.Librarian(t, "lib")}

	f.fiction = env.Section(t, f.lib, "Fiction", "Novels and stories")
	f.science = env.Section(t, f.lib, "Science", "")

	f.dune = env.Book(t, f.lib, testutil.BookFixture{
		ISBN: "111", Name: "Dune", Publisher: "Chilton", SectionID: f.fiction.ID, Authors: []string{"Frank Herbert"},
	})
	f.cosmos = env.Book(t, f.lib, testutil.BookFixture{
		ISBN: "222", Name: "Cosmos", Publisher: "Random House", SectionID: f.science.ID, Authors: []string{"Carl Sagan"},
	})
	f.garden = env.Book(t, f.lib, testutil.BookFixture{
		ISBN: "333", Name: "Herbert's Garden", Publisher: "Acme", Authors: []string{"Jane Doe"},
	})
	f.foundation = env.Book(t, f.lib, testutil.BookFixture{
		ISBN: "444", Name: "Foundation", Publisher: "Gnome", SectionID: f.fiction.ID, Authors: []string{"Isaac Asimov"},
	})
	f.essays = env.Book(t, f.lib, testutil.BookFixture{
		ISBN: "555", Name: "Asimov Essays", Publisher: "Acme", SectionID: f.science.ID, Authors: []string{"Isaac Asimov", "Jane Doe"},
	})
	return f
}

func (f *searchFixture) search(t *testing.T, query string, section *uint) []uint {
	t.Helper()
	results, err := f.env.Search.Search(context.Background(), query, section)
	require.NoError(t, err)
	return testutil.BookIDs(results)
}

func sectionRef(id uint) *uint {
	return &id
}

func TestSearchEmptyQueryReturnsEveryBook(t *testing.T) {
	f := newSearchFixture(t)

	ids := f.search(t, "", nil)
	assert.Equal(t, []uint{f.dune.ID, f.cosmos.ID, f.garden.ID, f.foundation.ID, f.essays.ID}, ids)
}

func TestSearchPassPrecedenceAndDedup(t *testing.T) {
	f := newSearchFixture(t)

	// Book pass finds the garden by name, author pass adds Dune; the garden is not repeated
	assert.Equal(t, []uint{f.garden.ID, f.dune.ID}, f.search(t, "herbert", nil))

	// The essays match by name before Foundation is reached through its author,
	// even though Foundation has the lower id
	assert.Equal(t, []uint{f.essays.ID, f.foundation.ID}, f.search(t, "asimov", nil))

	// The section description is only reachable through the section pass
	assert.Equal(t, []uint{f.dune.ID, f.foundation.ID}, f.search(t, "novels", nil))
}

func TestSearchEachBookAppearsOnce(t *testing.T) {
	f := newSearchFixture(t)

	for _, q := range []string{"", "a", "e", "acme", "jane", "fiction", "1", "herbert"} {
		ids := f.search(t, q, nil)
		seen := map[uint]bool{}
		for _, id := range ids {
			assert.False(t, seen[id], "book %d repeated for query %q", id, q)
			seen[id] = true
		}
	}
}

func TestSearchNormalizesQuery(t *testing.T) {
	f := newSearchFixture(t)

	assert.Equal(t, []uint{f.dune.ID}, f.search(t, "  FRANK her bert ", nil))
	assert.Equal(t, []uint{f.cosmos.ID}, f.search(t, "Random House", nil))
}

func TestSearchMatchesAcrossFieldBoundary(t *testing.T) {
	f := newSearchFixture(t)

	// "Cosmos" + "Random House" concatenate to "...cosmosrandomhouse..."
	assert.Equal(t, []uint{f.cosmos.ID}, f.search(t, "mosran", nil))
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	f := newSearchFixture(t)

	assert.Empty(t, f.search(t, "%", nil))
	assert.Empty(t, f.search(t, "_", nil))
	assert.Empty(t, f.search(t, "!", nil))

	// The apostrophe is an ordinary character
	assert.Equal(t, []uint{f.garden.ID}, f.search(t, "herbert's", nil))
}

func TestSearchSectionFilterIsSubset(t *testing.T) {
	f := newSearchFixture(t)

	sections := []uint{f.fiction.ID, f.science.ID, models.UnassignedSectionID}
	inSection := map[uint]map[uint]bool{
		f.fiction.ID:               {f.dune.ID: true, f.foundation.ID: true},
		f.science.ID:               {f.cosmos.ID: true, f.essays.ID: true},
		models.UnassignedSectionID: {f.garden.ID: true},
	}

	for _, q := range []string{"", "a", "herbert", "asimov", "novels", "jane"} {
		all := map[uint]bool{}
		for _, id := range f.search(t, q, nil) {
			all[id] = true
		}
		for _, s := range sections {
			for _, id := range f.search(t, q, sectionRef(s)) {
				assert.True(t, all[id], "query %q section %d: book %d not in unfiltered results", q, s, id)
				assert.True(t, inSection[s][id], "query %q section %d: book %d not in section", q, s, id)
			}
		}
	}

	assert.Equal(t, []uint{f.dune.ID, f.foundation.ID}, f.search(t, "", sectionRef(f.fiction.ID)))
	assert.Equal(t, []uint{f.garden.ID}, f.search(t, "", sectionRef(models.UnassignedSectionID)))
	assert.Equal(t, []uint{f.essays.ID}, f.search(t, "jane", sectionRef(f.science.ID)))
}

func TestSearchUnknownSectionIsEmpty(t *testing.T) {
	f := newSearchFixture(t)

	results, err := f.env.Search.Search(context.Background(), "", sectionRef(9999))
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchResultsAreCatalogCards(t *testing.T) {
	f := newSearchFixture(t)

	results, err := f.env.Search.Search(context.Background(), "cosmos", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	card := results[0]
	assert.Equal(t, "222", card.ISBN)
	assert.Equal(t, "Cosmos", card.Name)
	assert.Equal(t, "Random House", card.Publisher)
	assert.Equal(t, 100, card.PageCount)
	assert.Equal(t, "Science", card.SectionName)
	assert.Equal(t, f.science.ID, card.SectionID)
	assert.Equal(t, "10.00", card.Price.StringFixed(2))
	assert.Equal(t, []string{"Carl Sagan"}, card.Authors)

	garden, err := f.env.Search.Search(context.Background(), "garden", nil)
	require.NoError(t, err)
	require.Len(t, garden, 1)
	assert.Equal(t, models.UnassignedSectionID, garden[0].SectionID)
	assert.Equal(t, models.UnassignedSectionName, garden[0].SectionName)
}

func TestSearchFollowsSectionChanges(t *testing.T) {
	f := newSearchFixture(t)
	ctx := context.Background()

	name := "SciFi"
	_, err := f.env.Catalog.UpdateSection(ctx, f.lib, f.fiction.ID, services.SectionPatch{Name: &name})
	require.NoError(t, err)

	assert.Empty(t, f.search(t, "fiction", nil))
	assert.Equal(t, []uint{f.dune.ID, f.foundation.ID}, f.search(t, "scifi", nil))

	require.NoError(t, f.env.Catalog.DeleteSection(ctx, f.lib, f.science.ID))

	assert.Empty(t, f.search(t, "science", nil))
	assert.Equal(t, []uint{f.cosmos.ID, f.garden.ID, f.essays.ID}, f.search(t, "unassigned", nil))
	assert.Equal(t, []uint{f.cosmos.ID, f.garden.ID, f.essays.ID}, f.search(t, "", sectionRef(models.UnassignedSectionID)))
}

func TestSearchSections(t *testing.T) {
	f := newSearchFixture(t)
	ctx := context.Background()

	found, err := f.env.Search.SearchSections(ctx, "stories")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Fiction", found[0].Name)

	found, err = f.env.Search.SearchSections(ctx, "")
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, models.UnassignedSectionName, found[0].Name)

	found, err = f.env.Search.SearchSections(ctx, "assign")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, models.UnassignedSectionID, found[0].ID)
}
