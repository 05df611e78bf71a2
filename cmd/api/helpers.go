// cmd/api/helpers.go
// This file contains general-purpose helper functions for the application.
// Error-response helpers live in errors.go; only non-error utilities are here.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"

	"github.com/aoideee/library-loans/internal/validator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes caps every request body.
const maxBodyBytes = 1_048_576

// envelope wraps payloads that are not a resource of their own,
// e.g. {"errors": [...]} or {"status": "available"}.
type envelope map[string]any

// readIDParam extracts and validates the ":id" URL parameter added by httprouter.
func (app *applicationDependencies) readIDParam(r *http.Request) (int64, error) {
	// httprouter stores the matched path parameters on the request context.
	params := httprouter.ParamsFromContext(r.Context())
	id, err := strconv.ParseInt(params.ByName("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid id parameter")
	}
	return id, nil
}

// readString reads a string query parameter from qs, returning defaultValue
// if the key is absent or empty.
func (app *applicationDependencies) readString(qs url.Values, key, defaultValue string) string {
	s := qs.Get(key)
	if s == "" {
		return defaultValue
	}
	return s
}

// readOptionalString returns nil when key is absent or empty, so the value
// places no constraint on a query-by-example filter.
func (app *applicationDependencies) readOptionalString(qs url.Values, key string) *string {
	s := qs.Get(key)
	if s == "" {
		return nil
	}
	return &s
}

// readInt reads an integer query parameter from qs, returning defaultValue if
// the key is absent. A value that does not parse is recorded on v.
func (app *applicationDependencies) readInt(qs url.Values, key string, defaultValue int, v *validator.Validator) int {
	s := qs.Get(key)
	if s == "" {
		return defaultValue
	}
	// Record the failure so the handler answers 400 instead of guessing.
	i, err := strconv.Atoi(s)
	if err != nil {
		v.AddError(key, "must be an integer value")
		return defaultValue
	}
	return i
}

// readOptionalBool reads a boolean query parameter, nil when absent.
// A value that does not parse is recorded on v.
func (app *applicationDependencies) readOptionalBool(qs url.Values, key string, v *validator.Validator) *bool {
	s := qs.Get(key)
	if s == "" {
		return nil
	}
	// ParseBool accepts 1/0, t/f and true/false in any case.
	b, err := strconv.ParseBool(s)
	if err != nil {
		v.AddError(key, "must be a boolean value")
		return nil
	}
	return &b
}

// writeJSON marshals data to indented JSON, applies any custom headers,
// sets Content-Type to "application/json", writes the status code, and
// streams the body to the client.
func (app *applicationDependencies) writeJSON(w http.ResponseWriter, status int, data any, headers http.Header) error {
	// json-iterator only accepts spaces as indentation.
	js, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	js = append(js, '\n') // Trailing newline makes curl output nicer.

	// Copy any caller-supplied headers before the status line goes out.
	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
	return nil
}

// readJSON decodes a single JSON value from the request body into dst.
// It enforces a 1 MB size limit, rejects unknown fields, and ensures the
// body contains exactly one JSON value. An empty body leaves dst untouched,
// so field validation reports every missing field.
func (app *applicationDependencies) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	// Cap the request body to 1 MB.
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields() // Reject fields not present in dst.

	err := dec.Decode(dst)
	if err != nil {
		// No body at all decodes as an empty object.
		if errors.Is(err, io.EOF) {
			return nil
		}

		// json-iterator flattens the error chain into text, so the causes are
		// recognised by message. The raw text names Go types and is never echoed.
		msg := err.Error()
		switch {
		case strings.Contains(msg, "http: request body too large"):
			return fmt.Errorf("body must not be larger than %d bytes", maxBodyBytes)
		case strings.Contains(msg, "found unknown field"):
			return errors.New("body contains unknown field")
		default:
			return errors.New("body contains badly-formed JSON")
		}
	}

	// Anything after the first value is rejected.
	if dec.More() {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}
