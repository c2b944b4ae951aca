package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/storage"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env wires every service over an in-memory database and filesystem
type Env struct {
	DB      *gorm.DB
	FS      afero.Fs
	Files   *storage.FileStore
	Events  *events.Recorder
	Clock   *Clock
	Log     *zap.Logger
	Catalog *services.Catalog
	Search  *services.SearchEngine
	Lending *services.Lending
	Users   *services.Users
}

// NewEnv creates a fresh environment with the clock at noon UTC on 2026-03-10
func NewEnv(t *testing.T) *Env {
	t.Helper()
	return NewEnvWithFs(t, afero.NewMemMapFs())
}

// NewEnvWithFs is NewEnv over a given filesystem
func NewEnvWithFs(t *testing.T, fs afero.Fs) *Env {
	t.Helper()

	db := NewTestDB(t)
	files, err := storage.NewFileStore(fs)
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	e := &Env{
		DB:     db,
		FS:     fs,
		Files:  files,
		Events: &events.Recorder{},
		Clock:  NewClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)),
		Log:    zap.NewNop(),
	}

	e.Catalog = services.NewCatalog(db, files, e.Events, e.Log)
	e.Catalog.Now = e.Clock.Now
	e.Search = services.NewSearchEngine(db, e.Log)
	e.Lending = services.NewLending(db, files, e.Events, e.Log)
	e.Lending.Now = e.Clock.Now
	e.Users = services.NewUsers(db, e.Log)
	e.Users.Cost = bcrypt.MinCost
	return e
}

// Librarian creates a librarian account and returns its identity
func (e *Env) Librarian(t *testing.T, username string) services.Identity {
	t.Helper()
	u, err := e.Users.CreateLibrarian(context.Background(), services.Registration{
		Username:  username,
		Password:  "secret-" + username,
		FirstName: "Lib",
	})
	if err != nil {
		t.Fatalf("Failed to create librarian %s: %v", username, err)
	}
	return services.IdentityOf(u)
}

// Reader creates a general account and returns its identity
func (e *Env) Reader(t *testing.T, username string) services.Identity {
	t.Helper()
	u, err := e.Users.Register(context.Background(), services.Registration{
		Username:  username,
		Password:  "secret-" + username,
		FirstName: "Reader",
	})
	if err != nil {
		t.Fatalf("Failed to create reader %s: %v", username, err)
	}
	return services.IdentityOf(u)
}

// Section creates a section as librarian
func (e *Env) Section(t *testing.T, librarian services.Identity, name, description string) *services.SectionView {
	t.Helper()
	s, err := e.Catalog.CreateSection(context.Background(), librarian, services.SectionInput{Name: name, Description: description})
	if err != nil {
		t.Fatalf("Failed to create section %s: %v", name, err)
	}
	return s
}

// BookFixture describes a fixture book. Zero values get defaults.
type BookFixture struct {
	ISBN      string
	Name      string
	Publisher string
	PageCount int
	Volume    int
	Price     string
	SectionID uint
	Authors   []string
	File      string
}

// Book creates a book as librarian
func (e *Env) Book(t *testing.T, librarian services.Identity, spec BookFixture) *services.BookView {
	t.Helper()
	if spec.Name == "" {
		spec.Name = "Book " + spec.ISBN
	}
	if spec.Publisher == "" {
		spec.Publisher = "Acme"
	}
	if spec.PageCount == 0 {
		spec.PageCount = 100
	}
	if spec.Price == "" {
		spec.Price = "10.00"
	}
	if spec.Authors == nil {
		spec.Authors = []string{"Anon"}
	}
	if spec.File == "" {
		spec.File = spec.ISBN + ".pdf"
	}

	price, err := models.NewPrice(spec.Price)
	if err != nil {
		t.Fatalf("Bad fixture price %s: %v", spec.Price, err)
	}

	b, err := e.Catalog.CreateBook(context.Background(), librarian, services.BookInput{
		ISBN:      spec.ISBN,
		Name:      spec.Name,
		Publisher: spec.Publisher,
		PageCount: spec.PageCount,
		Volume:    spec.Volume,
		Price:     price,
		SectionID: spec.SectionID,
		Authors:   spec.Authors,
	}, services.Upload{Filename: spec.File, Content: strings.NewReader("%PDF-1.4 " + spec.Name)})
	if err != nil {
		t.Fatalf("Failed to create book %s: %v", spec.ISBN, err)
	}
	return b
}

// BookIDs returns the ids of views, in order
func BookIDs(views []services.BookView) []uint {
	ids := make([]uint, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	return ids
}
