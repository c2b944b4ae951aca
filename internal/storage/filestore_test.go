package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"dune.pdf":              "dune.pdf",
		"../../etc/passwd":      "passwd",
		`C:\books\My Book.pdf`:  "My_Book.pdf",
		"  spaced  name .pdf ":  "spaced_name_.pdf",
		"../.hidden.pdf":        "hidden.pdf",
		"ünïcödé.pdf":           "ncd.pdf",
		"///":                   "",
		"":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestRefRoundTrip(t *testing.T) {
	assert.Equal(t, "books/dune.pdf", Ref("dune.pdf"))
	assert.Equal(t, "dune.pdf", NameFromRef(Ref("dune.pdf")))
}

func TestFileStoreLifecycle(t *testing.T) {
	store, err := NewFileStore(afero.NewMemMapFs())
	require.NoError(t, err)

	exists, err := store.Exists("dune.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save("dune.pdf", strings.NewReader("spice")))
	exists, err = store.Exists("dune.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	f, err := store.Open("dune.pdf")
	require.NoError(t, err)
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "spice", string(content))

	require.NoError(t, store.Remove("dune.pdf"))
	exists, err = store.Exists("dune.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	// Removing twice is fine
	assert.NoError(t, store.Remove("dune.pdf"))
}

func TestFileStoreReadOnly(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll(ContentDir, 0o755))
	store, err := NewFileStore(afero.NewReadOnlyFs(base))
	require.NoError(t, err)

	assert.Error(t, store.Save("dune.pdf", strings.NewReader("spice")))
}
