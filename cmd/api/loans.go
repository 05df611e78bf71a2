// cmd/api/loans.go
// This file contains the HTTP request handlers for the loan resource.
package main

import (
	"net/http"

	"github.com/aoideee/library-loans/internal/data"
	"github.com/aoideee/library-loans/internal/service"
	"github.com/aoideee/library-loans/internal/validator"
)

// createLoanHandler handles POST /loans.
// The loan date is always set by the server.
func (app *applicationDependencies) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var input service.LoanRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	v := validator.New()
	if v.Struct(input); !v.Valid() {
		app.failedValidationResponse(w, r, v.Errors)
		return
	}

	// The service rejects unknown isbns and books already out on loan.
	loan, err := app.loans.Save(r.Context(), input)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	// 201 with the new loan, book included.
	err = app.writeJSON(w, http.StatusCreated, loan, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// showLoanHandler handles GET /loans/:id.
func (app *applicationDependencies) showLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	loan, err := app.loans.GetByID(r.Context(), id)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, loan, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// returnLoanHandler handles PATCH /loans/:id: the book is given back.
// Responds 200 with no body.
func (app *applicationDependencies) returnLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	// Returning an already returned loan still answers 200.
	err = app.loans.GiveBackBook(r.Context(), id)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// listLoansHandler handles GET /loans?customer&isbn&returned.
func (app *applicationDependencies) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	v := validator.New()

	filter := data.LoanFilter{
		Customer: app.readOptionalString(qs, "customer"),
		ISBN:     app.readOptionalString(qs, "isbn"),
		// Anything other than true/false is a validation error.
		Returned: app.readOptionalBool(qs, "returned", v),
	}
	page := app.readPageRequest(qs, data.LoanSortSafeList, v)

	if data.ValidatePageRequest(v, page); !v.Valid() {
		app.failedValidationResponse(w, r, v.Errors)
		return
	}

	loans, err := app.loans.Find(r.Context(), filter, page)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, loans, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// listBookLoansHandler handles GET /book/:id/loans.
func (app *applicationDependencies) listBookLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	v := validator.New()
	page := app.readPageRequest(r.URL.Query(), data.LoanSortSafeList, v)

	if data.ValidatePageRequest(v, page); !v.Valid() {
		app.failedValidationResponse(w, r, v.Errors)
		return
	}

	// An unknown book id yields an empty page.
	loans, err := app.loans.FindByBook(r.Context(), id, page)
	if err != nil {
		app.businessErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, loans, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
