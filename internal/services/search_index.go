package services

import (
	"strconv"
	"strings"
	"unicode"
)

// Normalize lower-cases s and strips every space character.
// It is the only normalization applied to both stored tokens and queries.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// SectionToken is the search token of a section.
// Fields are concatenated without a delimiter, so a query may match across a field boundary.
func SectionToken(name, description string) string {
	return Normalize(name) + Normalize(description)
}

// BookToken is the search token of a book, including the name of its section
func BookToken(isbn, name, publisher, sectionName string, volume, pageCount int) string {
	return Normalize(isbn) +
		Normalize(name) +
		Normalize(publisher) +
		Normalize(sectionName) +
		strconv.Itoa(volume) +
		strconv.Itoa(pageCount)
}

// AuthorToken is the search token of one author credit
func AuthorToken(authorName string) string {
	return Normalize(authorName)
}

// likeEscape is the LIKE escape character used by every token lookup
const likeEscape = "!"

// containsPattern turns a raw query into a literal substring LIKE pattern.
// The bracket class syntax only exists on SQL Server.
func containsPattern(query string, dialect string) string {
	specials := "!%_"
	if dialect == "sqlserver" {
		specials += "["
	}

	q := Normalize(query)
	var b strings.Builder
	b.Grow(len(q) + 2)
	b.WriteByte('%')
	for _, r := range q {
		if strings.ContainsRune(specials, r) {
			b.WriteString(likeEscape)
		}
		b.WriteRune(r)
	}
	b.WriteByte('%')
	return b.String()
}
