// cmd/api/errors.go
// This file contains all error-response helpers for the application.
// It is the only place where business error kinds become HTTP status codes.
package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aoideee/library-loans/internal/service"
	"github.com/aoideee/library-loans/internal/validator"
)

// logError logs an internal error at ERROR level with the request method and URL for context.
func (app *applicationDependencies) logError(r *http.Request, err error) {
	app.logger.Error(err.Error(),
		slog.String("request_method", r.Method),
		slog.String("request_url", r.URL.String()),
		slog.String("request_id", requestIDFromContext(r.Context())),
	)
}

// errorsResponse sends {"errors": [...]} with the given status code.
// Every error helper below ends up here.
func (app *applicationDependencies) errorsResponse(w http.ResponseWriter, r *http.Request, status int, errs []validator.FieldError) {
	err := app.writeJSON(w, status, envelope{"errors": errs}, nil)
	// The envelope itself failed to encode; fall back to a bare 500.
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// errorResponse sends a single field-less error entry.
func (app *applicationDependencies) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	app.errorsResponse(w, r, status, []validator.FieldError{{Message: message}})
}

// serverErrorResponse logs the error and sends a generic 500 message;
// internal details never reach the client.
func (app *applicationDependencies) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)
	app.errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func (app *applicationDependencies) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func (app *applicationDependencies) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	message := "the " + r.Method + " method is not supported for this resource"
	app.errorResponse(w, r, http.StatusMethodNotAllowed, message)
}

func (app *applicationDependencies) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

// failedValidationResponse sends 400 with one entry per offending field.
func (app *applicationDependencies) failedValidationResponse(w http.ResponseWriter, r *http.Request, errs []validator.FieldError) {
	app.errorsResponse(w, r, http.StatusBadRequest, errs)
}

func (app *applicationDependencies) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusTooManyRequests, "rate limit exceeded")
}

// businessErrorResponse translates a service failure into its status code and
// fixed message. Anything that is not a *service.Error is a 500.
func (app *applicationDependencies) businessErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	// Store failures arrive here unclassified.
	var serviceErr *service.Error
	if !errors.As(err, &serviceErr) {
		app.serverErrorResponse(w, r, err)
		return
	}

	// An unknown kind is logged like any other internal error.
	status := statusFor(serviceErr.Kind)
	if status == http.StatusInternalServerError {
		app.serverErrorResponse(w, r, err)
		return
	}

	app.errorResponse(w, r, status, serviceErr.Message)
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.InvalidArgument:
		return http.StatusBadRequest
	case service.NotFound:
		return http.StatusNotFound
	// A taken isbn and a book that is out or still referenced are both conflicts.
	case service.DuplicateKey, service.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
