package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_DATABASE", filepath.Join(dir, "library.db"))
	t.Setenv("UPLOAD_DIR", filepath.Join(dir, "static"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
}

func TestSeedAndCatalogCommands(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "seed", "--username", "boss", "--password", "secret-boss")
	require.NoError(t, err)
	assert.Contains(t, out, "Created librarian boss")

	_, err = run(t, "seed", "--username", "boss", "--password", "secret-boss")
	assert.Error(t, err)

	out, err = run(t, "section", "add", "--as", "boss", "--name", "Poetry", "--description", "Verse")
	require.NoError(t, err)
	assert.Contains(t, out, "Created section Poetry")

	out, err = run(t, "section", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "0\tUnassigned")
	assert.Contains(t, out, "Poetry\tVerse")

	pdf := filepath.Join(dir, "odes.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4 odes"), 0o644))

	out, err = run(t, "book", "add", "--as", "boss", "--file", pdf,
		"--isbn", "9780140444223", "--name", "Odes", "--publisher", "Penguin",
		"--pages", "240", "--price", "9.99", "--section", "1", "--author", "Horace")
	require.NoError(t, err)
	assert.Contains(t, out, "Created book Odes")
	assert.FileExists(t, filepath.Join(dir, "static", "books", "odes.pdf"))
}

func TestCatalogCommandsNeedALibrarian(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "section", "add", "--as", "nobody", "--name", "Poetry")
	assert.Error(t, err)

	_, err = run(t, "section", "add", "--name", "Poetry")
	assert.Error(t, err)
}
