// common.go
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
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/types"
	"github.com/localnerve/librarydb/internal/utils"
)

// statusOf maps a service error onto its HTTP status and error type suffix
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound, "notfound"
	case errors.Is(err, services.ErrConflict):
		return fiber.StatusConflict, "conflict"
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest, "validation"
	case errors.Is(err, services.ErrUnauthenticated):
		return fiber.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrQuotaExceeded):
		return fiber.StatusTooManyRequests, "quota"
	}
	return fiber.StatusInternalServerError, "internal"
}

// respondError renders a service error in the standard error envelope
func respondError(c *fiber.Ctx, err error, scope string) error {
	status, kind := statusOf(err)
	return utils.ErrorResponse(c, err.Error(), status, scope+"."+kind)
}

// badInput rejects a request that could not be parsed
func badInput(c *fiber.Ctx, scope, message string) error {
	return utils.ErrorResponse(c, message, fiber.StatusBadRequest, scope+".validation.input")
}

// ErrorHandler handles errors globally
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"

	var custom *types.CustomError
	var fe *fiber.Error
	switch {
	case errors.As(err, &custom):
		code = custom.Code
		message = custom.Message
		errorType = custom.Type
	case errors.As(err, &fe):
		code = fe.Code
		message = fe.Message
		errorType = "http"
	default:
		if status, kind := statusOf(err); status != fiber.StatusInternalServerError {
			code = status
			errorType = kind
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    code,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}

// NotFound is the catch-all for unknown routes
func NotFound(c *fiber.Ctx) error {
	return utils.NotFoundResponse(c, "[404] Resource Not Found")
}

// paramID parses a positive integer route parameter
func paramID(c *fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Params(name), 10, 0)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// sectionParam parses a section id route parameter; 0 names the Unassigned section
func sectionParam(c *fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Params(name), 10, 0)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

// optionalUint parses an optional unsigned query parameter. ok is false when present but malformed.
func optionalUint(c *fiber.Ctx, name string) (*uint, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 0)
	if err != nil {
		return nil, false
	}
	u := uint(v)
	return &u, true
}
