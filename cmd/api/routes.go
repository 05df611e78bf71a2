// cmd/api/routes.go
package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// routes registers all HTTP endpoints and returns the router wrapped in the
// middleware chain.
//
// Middleware chain (outermost → innermost):
//
//	recoverPanic → requestID → logRequest → rateLimit → router
func (app *applicationDependencies) routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(app.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedResponse)

	router.HandlerFunc(http.MethodGet, "/health", app.healthcheckHandler)

	router.HandlerFunc(http.MethodPost, "/book", app.createBookHandler)
	router.HandlerFunc(http.MethodGet, "/book", app.listBooksHandler)
	router.HandlerFunc(http.MethodGet, "/book/:id", app.showBookHandler)
	router.HandlerFunc(http.MethodPut, "/book/:id", app.updateBookHandler)
	router.HandlerFunc(http.MethodDelete, "/book/:id", app.deleteBookHandler)
	router.HandlerFunc(http.MethodGet, "/book/:id/loans", app.listBookLoansHandler)

	router.HandlerFunc(http.MethodPost, "/loans", app.createLoanHandler)
	router.HandlerFunc(http.MethodGet, "/loans", app.listLoansHandler)
	router.HandlerFunc(http.MethodGet, "/loans/:id", app.showLoanHandler)
	router.HandlerFunc(http.MethodPatch, "/loans/:id", app.returnLoanHandler)

	return app.recoverPanic(app.requestID(app.logRequest(app.rateLimit(router))))
}
