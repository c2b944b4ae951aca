// catalog.go
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

package handlers

import (
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/librarydb/internal/middleware"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/types"
	"github.com/localnerve/librarydb/internal/utils"
)

// BookFileField is the multipart field that carries book content
const BookFileField = "book_file"

// CatalogHandler handles section, book and search routes
type CatalogHandler struct {
	Catalog *services.Catalog
	Engine  *services.SearchEngine
}

// ListSections handles GET /api/sections
// @Summary List sections
// @Description List every section, the Unassigned section first
// @Tags Catalog
// @Produce json
// @Success 200 {array} services.SectionView
// @Security CookieAuth
// @Router /sections [get]
func (h *CatalogHandler) ListSections(c *fiber.Ctx) error {
	sections, err := h.Catalog.ListSections(c.UserContext())
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, sections, fiber.StatusOK)
}

// SearchSections handles GET /api/sections/search?q=
// @Summary Search sections
// @Tags Catalog
// @Produce json
// @Param q query string false "Search text"
// @Success 200 {array} services.SectionView
// @Security CookieAuth
// @Router /sections/search [get]
func (h *CatalogHandler) SearchSections(c *fiber.Ctx) error {
	sections, err := h.Engine.SearchSections(c.UserContext(), c.Query("q"))
	if err != nil {
		return respondError(c, err, "search")
	}
	return utils.SuccessResponse(c, sections, fiber.StatusOK)
}

// GetSection handles GET /api/sections/:id
// @Summary Get a section
// @Tags Catalog
// @Produce json
// @Param id path int true "Section ID, 0 for Unassigned"
// @Success 200 {object} services.SectionView
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /sections/{id} [get]
func (h *CatalogHandler) GetSection(c *fiber.Ctx) error {
	id, ok := sectionParam(c, "id")
	if !ok {
		return badInput(c, "catalog", "Invalid section id")
	}
	section, err := h.Catalog.GetSection(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, section, fiber.StatusOK)
}

// CreateSection handles POST /api/sections
// @Summary Create a section
// @Tags Catalog
// @Accept json
// @Produce json
// @Param body body services.SectionInput true "New section"
// @Success 201 {object} services.SectionView
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /sections [post]
func (h *CatalogHandler) CreateSection(c *fiber.Ctx) error {
	var in services.SectionInput
	if err := c.BodyParser(&in); err != nil {
		return badInput(c, "catalog", "Invalid input")
	}
	section, err := h.Catalog.CreateSection(c.UserContext(), middleware.IdentityFrom(c), in)
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, section, fiber.StatusCreated)
}

// UpdateSection handles PATCH /api/sections/:id
// @Summary Edit a section
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path int true "Section ID"
// @Param body body services.SectionPatch true "Changed fields"
// @Success 200 {object} services.SectionView
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /sections/{id} [patch]
func (h *CatalogHandler) UpdateSection(c *fiber.Ctx) error {
	id, ok := sectionParam(c, "id")
	if !ok {
		return badInput(c, "catalog", "Invalid section id")
	}
	var patch services.SectionPatch
	if err := c.BodyParser(&patch); err != nil {
		return badInput(c, "catalog", "Invalid input")
	}
	section, err := h.Catalog.UpdateSection(c.UserContext(), middleware.IdentityFrom(c), id, patch)
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, section, fiber.StatusOK)
}

// DeleteSection handles DELETE /api/sections/:id
// @Summary Delete a section
// @Description Delete a section and move its books to Unassigned
// @Tags Catalog
// @Produce json
// @Param id path int true "Section ID"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /sections/{id} [delete]
func (h *CatalogHandler) DeleteSection(c *fiber.Ctx) error {
	id, ok := sectionParam(c, "id")
	if !ok {
		return badInput(c, "catalog", "Invalid section id")
	}
	if err := h.Catalog.DeleteSection(c.UserContext(), middleware.IdentityFrom(c), id); err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Section removed")
}

// ListBooks handles GET /api/books?section=
// @Summary List books
// @Tags Catalog
// @Produce json
// @Param section query int false "Section ID, 0 for Unassigned"
// @Success 200 {array} services.BookView
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /books [get]
func (h *CatalogHandler) ListBooks(c *fiber.Ctx) error {
	section, ok := optionalUint(c, "section")
	if !ok {
		return badInput(c, "catalog", "Invalid section id")
	}
	books, err := h.Catalog.ListBooks(c.UserContext(), section)
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, books, fiber.StatusOK)
}

// GetBook handles GET /api/books/:id
// @Summary Get a book
// @Tags Catalog
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} services.BookView
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /books/{id} [get]
func (h *CatalogHandler) GetBook(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badInput(c, "catalog", "Invalid book id")
	}
	book, err := h.Catalog.GetBook(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, book, fiber.StatusOK)
}

// formValue returns a multipart field, nil when it was not sent
func formValue(form *multipart.Form, key string) *string {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := strings.TrimSpace(values[0])
	return &v
}

// formInt parses an optional integer multipart field
func formInt(form *multipart.Form, key string) (*int, bool) {
	raw := formValue(form, key)
	if raw == nil || *raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(*raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}

// formAuthors collects authors sent as repeated fields, comma separated values, or both
func formAuthors(form *multipart.Form) []string {
	values, ok := form.Value["authors"]
	if !ok {
		return nil
	}
	return types.SplitNames(strings.Join(values, ",")).Slice()
}

func formPrice(form *multipart.Form) (*models.Price, bool) {
	raw := formValue(form, "price")
	if raw == nil || *raw == "" {
		return nil, true
	}
	p, err := models.NewPrice(*raw)
	if err != nil {
		return nil, false
	}
	return &p, true
}

func formSection(form *multipart.Form) (*uint, bool) {
	v, ok := formInt(form, "section_id")
	if !ok || v == nil {
		return nil, ok
	}
	if *v < 0 {
		return nil, false
	}
	id := uint(*v)
	return &id, true
}

// formUpload opens the uploaded book file, nil when none was sent
func formUpload(form *multipart.Form) (*services.Upload, func(), error) {
	files := form.File[BookFileField]
	if len(files) == 0 {
		return nil, func() {}, nil
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &services.Upload{Filename: files[0].Filename, Content: f}, func() { _ = f.Close() }, nil
}

// CreateBook handles POST /api/books (multipart/form-data)
// @Summary Create a book
// @Description Add a book with its authors and PDF content
// @Tags Catalog
// @Accept multipart/form-data
// @Produce json
// @Param isbn formData string true "ISBN"
// @Param name formData string true "Title"
// @Param publisher formData string true "Publisher"
// @Param page_count formData int true "Page count"
// @Param volume formData int false "Volume"
// @Param price formData string true "Price"
// @Param section_id formData int false "Section ID, 0 for Unassigned"
// @Param authors formData string true "Comma separated author names"
// @Param book_file formData file true "PDF content"
// @Success 201 {object} services.BookView
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /books [post]
func (h *CatalogHandler) CreateBook(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badInput(c, "catalog", "Expected a multipart form")
	}

	pageCount, ok := formInt(form, "page_count")
	if !ok || pageCount == nil {
		return badInput(c, "catalog", "page_count must be a number")
	}
	volume, ok := formInt(form, "volume")
	if !ok {
		return badInput(c, "catalog", "volume must be a number")
	}
	price, ok := formPrice(form)
	if !ok || price == nil {
		return badInput(c, "catalog", "price must be a decimal number")
	}
	section, ok := formSection(form)
	if !ok {
		return badInput(c, "catalog", "Invalid section id")
	}

	in := services.BookInput{
		PageCount: *pageCount,
		Price:     *price,
		Authors:   formAuthors(form),
	}
	for key, dst := range map[string]*string{"isbn": &in.ISBN, "name": &in.Name, "publisher": &in.Publisher} {
		if v := formValue(form, key); v != nil {
			*dst = *v
		}
	}
	if volume != nil {
		in.Volume = *volume
	}
	if section != nil {
		in.SectionID = *section
	}

	upload, closeUpload, err := formUpload(form)
	if err != nil {
		return badInput(c, "catalog", "Unreadable book file")
	}
	defer closeUpload()
	if upload == nil {
		upload = &services.Upload{}
	}

	book, err := h.Catalog.CreateBook(c.UserContext(), middleware.IdentityFrom(c), in, *upload)
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, book, fiber.StatusCreated)
}

// BookPatchInput is the JSON form of a book edit
type BookPatchInput struct {
	ISBN      *string         `json:"isbn"`
	Name      *string         `json:"name"`
	Publisher *string         `json:"publisher"`
	PageCount *types.FlexInt  `json:"page_count"`
	Volume    *types.FlexInt  `json:"volume"`
	Price     *models.Price   `json:"price"`
	SectionID *types.FlexInt  `json:"section_id"`
	Authors   *types.NameList `json:"authors"`
}

func (in *BookPatchInput) patch() (services.BookPatch, bool) {
	p := services.BookPatch{
		ISBN:      in.ISBN,
		Name:      in.Name,
		Publisher: in.Publisher,
		PageCount: in.PageCount.IntPtr(),
		Volume:    in.Volume.IntPtr(),
	}
	if in.Price != nil {
		rounded := models.Price{Decimal: in.Price.Round(2)}
		p.Price = &rounded
	}
	if in.SectionID != nil {
		if in.SectionID.Int() < 0 {
			return p, false
		}
		id := uint(in.SectionID.Int())
		p.SectionID = &id
	}
	if in.Authors != nil {
		p.Authors = in.Authors.Slice()
	}
	return p, true
}

// UpdateBook handles PATCH /api/books/:id
// @Summary Edit a book
// @Description Change book fields with a JSON body, or send a multipart form to also replace the content
// @Tags Catalog
// @Accept json,multipart/form-data
// @Produce json
// @Param id path int true "Book ID"
// @Param body body BookPatchInput false "Changed fields"
// @Success 200 {object} services.BookView
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /books/{id} [patch]
func (h *CatalogHandler) UpdateBook(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badInput(c, "catalog", "Invalid book id")
	}

	var patch services.BookPatch
	var upload *services.Upload

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return badInput(c, "catalog", "Invalid multipart form")
		}
		patch = services.BookPatch{
			ISBN:      formValue(form, "isbn"),
			Name:      formValue(form, "name"),
			Publisher: formValue(form, "publisher"),
			Authors:   formAuthors(form),
		}
		if patch.PageCount, ok = formInt(form, "page_count"); !ok {
			return badInput(c, "catalog", "page_count must be a number")
		}
		if patch.Volume, ok = formInt(form, "volume"); !ok {
			return badInput(c, "catalog", "volume must be a number")
		}
		if patch.Price, ok = formPrice(form); !ok {
			return badInput(c, "catalog", "price must be a decimal number")
		}
		if patch.SectionID, ok = formSection(form); !ok {
			return badInput(c, "catalog", "Invalid section id")
		}

		var closeUpload func()
		upload, closeUpload, err = formUpload(form)
		if err != nil {
			return badInput(c, "catalog", "Unreadable book file")
		}
		defer closeUpload()
	} else {
		var in BookPatchInput
		if err := c.BodyParser(&in); err != nil {
			return badInput(c, "catalog", "Invalid input")
		}
		if patch, ok = in.patch(); !ok {
			return badInput(c, "catalog", "Invalid section id")
		}
	}

	book, err := h.Catalog.UpdateBook(c.UserContext(), middleware.IdentityFrom(c), id, patch, upload)
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, book, fiber.StatusOK)
}

// DeleteBook handles DELETE /api/books/:id
// @Summary Delete a book
// @Description Delete a book with its authors, requests, issues, feedback, purchases and content
// @Tags Catalog
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /books/{id} [delete]
func (h *CatalogHandler) DeleteBook(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badInput(c, "catalog", "Invalid book id")
	}
	if err := h.Catalog.DeleteBook(c.UserContext(), middleware.IdentityFrom(c), id); err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Book removed")
}

// BookStatus handles GET /api/books/:id/status
// @Summary Book status
// @Description Pending requests and current loans of a book
// @Tags Catalog
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} services.BookStatus
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /books/{id}/status [get]
func (h *CatalogHandler) BookStatus(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badInput(c, "catalog", "Invalid book id")
	}
	status, err := h.Catalog.BookStatus(c.UserContext(), middleware.IdentityFrom(c), id)
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, status, fiber.StatusOK)
}

// Stats handles GET /api/stats
// @Summary Dashboard counts
// @Tags Catalog
// @Produce json
// @Success 200 {object} services.Stats
// @Security CookieAuth
// @Router /stats [get]
func (h *CatalogHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.Catalog.Stats(c.UserContext(), middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, err, "catalog")
	}
	return utils.SuccessResponse(c, stats, fiber.StatusOK)
}

// Search handles GET /api/search?q=&section=
// @Summary Search books
// @Description Substring match over book, author and section text, in that order
// @Tags Search
// @Produce json
// @Param q query string false "Search text; empty matches every book"
// @Param section query int false "Section ID, 0 for Unassigned"
// @Success 200 {array} services.BookView
// @Security CookieAuth
// @Router /search [get]
func (h *CatalogHandler) Search(c *fiber.Ctx) error {
	section, ok := optionalUint(c, "section")
	if !ok {
		return badInput(c, "search", "Invalid section id")
	}
	books, err := h.Engine.Search(c.UserContext(), c.Query("q"), section)
	if err != nil {
		return respondError(c, err, "search")
	}
	return utils.SuccessResponse(c, books, fiber.StatusOK)
}
