// cmd/api/handlers.go
// This file contains the HTTP request handlers for the book resource.
// Each handler is a method on *applicationDependencies so it has access
// to the logger and the services.
package main

import (
	"net/http"
	"net/url"

	"github.com/aoideee/library-loans/internal/data"
	"github.com/aoideee/library-loans/internal/service"
	"github.com/aoideee/library-loans/internal/validator"
)

// createBookHandler handles POST /book.
// It responds with the stored book, including its assigned id.
func (app *applicationDependencies) createBookHandler(w http.ResponseWriter, r *http.Request) {
	// Decode the body into a BookDTO; unknown fields are rejected.
	var input service.BookDTO

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	// name, isbn and author must all be non-blank.
	v := validator.New()
	if v.Struct(input); !v.Valid() {
		app.failedValidationResponse(w, r, v.Errors)
		return
	}

	book, err := app.books.Save(r.Context(), input)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, book, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// showBookHandler handles GET /book/:id.
func (app *applicationDependencies) showBookHandler(w http.ResponseWriter, r *http.Request) {
	// A non-numeric or non-positive id cannot name a book.
	id, err := app.readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	book, err := app.books.GetByID(r.Context(), id)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, book, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// listBooksHandler handles GET /book.
// name, isbn and author are matched exactly; absent ones match everything.
func (app *applicationDependencies) listBooksHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	v := validator.New()

	filter := data.BookFilter{
		Name:   app.readOptionalString(qs, "name"),
		ISBN:   app.readOptionalString(qs, "isbn"),
		Author: app.readOptionalString(qs, "author"),
	}
	page := app.readPageRequest(qs, data.BookSortSafeList, v)

	// Bad page or size values and parse failures are reported together.
	if data.ValidatePageRequest(v, page); !v.Valid() {
		app.failedValidationResponse(w, r, v.Errors)
		return
	}

	books, err := app.books.Find(r.Context(), filter, page)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, books, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// updateBookHandler handles PUT /book/:id.
// The path id wins over any id in the body.
func (app *applicationDependencies) updateBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	var input service.BookDTO

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	v := validator.New()
	if v.Struct(input); !v.Valid() {
		app.failedValidationResponse(w, r, v.Errors)
		return
	}

	// Overwrite whatever id the body carried.
	input.ID = &id

	book, err := app.books.Update(r.Context(), &input)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, book, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// deleteBookHandler handles DELETE /book/:id and responds 204 with no body.
func (app *applicationDependencies) deleteBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	err = app.books.Delete(r.Context(), id)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// healthcheckHandler handles GET /health.
func (app *applicationDependencies) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := envelope{
		"status": "available",
		"system_info": map[string]string{
			"environment": app.config.environment,
			"version":     appVersion,
		},
	}

	// An unreachable store downgrades the response to 503.
	if err := app.store.Ping(r.Context()); err != nil {
		app.logError(r, err)
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}

	err := app.writeJSON(w, status, body, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// readPageRequest reads page, size and sort from qs. Parse failures are
// recorded on v; range checks are left to data.ValidatePageRequest.
func (app *applicationDependencies) readPageRequest(qs url.Values, safeList []string, v *validator.Validator) data.PageRequest {
	page := data.NewPageRequest(safeList)

	page.Page = app.readInt(qs, "page", page.Page, v)
	page.Size = app.readInt(qs, "size", page.Size, v)
	page.Sort = app.readString(qs, "sort", page.Sort)

	return page
}
