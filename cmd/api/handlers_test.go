package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aoideee/library-loans/internal/data"
	"github.com/aoideee/library-loans/internal/service"
	"github.com/aoideee/library-loans/internal/validator"
)

type errorsBody struct {
	Errors []validator.FieldError `json:"errors"`
}

func newTestApplication(t *testing.T) *applicationDependencies {
	t.Helper()

	var cfg serverConfig
	cfg.environment = "testing"
	cfg.db.driver = driverMemory

	app, cleanup, err := newApplication(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	return app
}

func send(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, reader))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func createBook(t *testing.T, h http.Handler, name, isbn, author string) service.BookDTO {
	t.Helper()

	body := fmt.Sprintf(`{"name":%q,"isbn":%q,"author":%q}`, name, isbn, author)
	rr := send(t, h, http.MethodPost, "/book", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	return decode[service.BookDTO](t, rr)
}

func createLoan(t *testing.T, h http.Handler, isbn, customer string) service.LoanDTO {
	t.Helper()

	body := fmt.Sprintf(`{"isbn":%q,"customer":%q}`, isbn, customer)
	rr := send(t, h, http.MethodPost, "/loans", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	return decode[service.LoanDTO](t, rr)
}

func TestCreateBook_ReturnsStoredBook(t *testing.T) {
	h := newTestApplication(t).routes()

	book := createBook(t, h, "A alcateia", "123", "Jonathan Anthony")

	require.NotNil(t, book.ID)
	assert.Positive(t, *book.ID)
	assert.Equal(t, "A alcateia", book.Name)
	assert.Equal(t, "123", book.ISBN)
	assert.Equal(t, "Jonathan Anthony", book.Author)
}

func TestCreateBook_DuplicatedISBN(t *testing.T) {
	h := newTestApplication(t).routes()
	createBook(t, h, "A alcateia", "123", "Jonathan Anthony")

	rr := send(t, h, http.MethodPost, "/book", `{"name":"Other","isbn":"123","author":"Someone"}`)

	assert.Equal(t, http.StatusConflict, rr.Code)
	body := decode[errorsBody](t, rr)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "Duplicated isbn", body.Errors[0].Message)
}

func TestCreateBook_EmptyBodyReportsEveryField(t *testing.T) {
	h := newTestApplication(t).routes()

	for name, body := range map[string]string{"no body": "", "empty object": "{}"} {
		t.Run(name, func(t *testing.T) {
			rr := send(t, h, http.MethodPost, "/book", body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			errs := decode[errorsBody](t, rr).Errors
			require.Len(t, errs, 3)
			assert.Equal(t, "name", errs[0].Field)
			assert.Equal(t, "isbn", errs[1].Field)
			assert.Equal(t, "author", errs[2].Field)
			for _, fe := range errs {
				assert.Equal(t, "must not be blank", fe.Message)
			}
		})
	}
}

func TestCreateBook_BlankField(t *testing.T) {
	h := newTestApplication(t).routes()

	rr := send(t, h, http.MethodPost, "/book", `{"name":"A alcateia","isbn":"   ","author":"Jonathan Anthony"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	errs := decode[errorsBody](t, rr).Errors
	require.Len(t, errs, 1)
	assert.Equal(t, "isbn", errs[0].Field)
}

func TestCreateBook_MalformedBodies(t *testing.T) {
	h := newTestApplication(t).routes()

	for name, body := range map[string]string{
		"broken json":   `{"name":`,
		"unknown field": `{"name":"a","isbn":"b","author":"c","pages":3}`,
		"two values":    `{"name":"a","isbn":"b","author":"c"}{}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := send(t, h, http.MethodPost, "/book", body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, decode[errorsBody](t, rr).Errors)
		})
	}
}

func TestShowBook(t *testing.T) {
	h := newTestApplication(t).routes()
	book := createBook(t, h, "A alcateia", "123", "Jonathan Anthony")

	rr := send(t, h, http.MethodGet, fmt.Sprintf("/book/%d", *book.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, book, decode[service.BookDTO](t, rr))

	rr = send(t, h, http.MethodGet, "/book/999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Book not found", decode[errorsBody](t, rr).Errors[0].Message)

	rr = send(t, h, http.MethodGet, "/book/abc", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateBook(t *testing.T) {
	h := newTestApplication(t).routes()
	book := createBook(t, h, "A alcateia", "123", "Jonathan Anthony")
	target := fmt.Sprintf("/book/%d", *book.ID)

	rr := send(t, h, http.MethodPut, target, `{"id":500,"name":"A alcateia 2","isbn":"123","author":"Jonathan Anthony"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[service.BookDTO](t, rr)
	assert.Equal(t, *book.ID, *updated.ID)
	assert.Equal(t, "A alcateia 2", updated.Name)

	rr = send(t, h, http.MethodGet, target, "")
	assert.Equal(t, "A alcateia 2", decode[service.BookDTO](t, rr).Name)
}

func TestUpdateBook_Missing(t *testing.T) {
	h := newTestApplication(t).routes()

	rr := send(t, h, http.MethodPut, "/book/42", `{"name":"x","isbn":"y","author":"z"}`)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Book not found", decode[errorsBody](t, rr).Errors[0].Message)
}

func TestDeleteBook(t *testing.T) {
	h := newTestApplication(t).routes()
	book := createBook(t, h, "A alcateia", "123", "Jonathan Anthony")
	target := fmt.Sprintf("/book/%d", *book.ID)

	rr := send(t, h, http.MethodDelete, target, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = send(t, h, http.MethodGet, target, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = send(t, h, http.MethodDelete, target, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteBook_WithLoans(t *testing.T) {
	h := newTestApplication(t).routes()
	book := createBook(t, h, "A alcateia", "123", "Jonathan Anthony")
	createLoan(t, h, "123", "jonathan")

	rr := send(t, h, http.MethodDelete, fmt.Sprintf("/book/%d", *book.ID), "")

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "Book has loans", decode[errorsBody](t, rr).Errors[0].Message)
}

func TestListBooks(t *testing.T) {
	h := newTestApplication(t).routes()
	createBook(t, h, "A alcateia", "123", "Jonathan Anthony")
	createBook(t, h, "O cortiço", "456", "Aluísio Azevedo")
	createBook(t, h, "Casa de pensão", "789", "Aluísio Azevedo")

	rr := send(t, h, http.MethodGet, "/book?author=Alu%C3%ADsio+Azevedo&size=1&sort=-name", "")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decode[data.Page[service.BookDTO]](t, rr)
	assert.Equal(t, 2, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, data.Pageable{PageNumber: 0, PageSize: 1, Sort: "-name"}, page.Pageable)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "O cortiço", page.Content[0].Name)
}

func TestListBooks_NoFilterMatchesAll(t *testing.T) {
	h := newTestApplication(t).routes()
	createBook(t, h, "A alcateia", "123", "Jonathan Anthony")
	createBook(t, h, "O cortiço", "456", "Aluísio Azevedo")

	rr := send(t, h, http.MethodGet, "/book", "")

	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[data.Page[service.BookDTO]](t, rr)
	assert.Equal(t, 2, page.TotalElements)
	assert.Equal(t, data.DefaultPageSize, page.Pageable.PageSize)
}

func TestListBooks_InvalidPaging(t *testing.T) {
	h := newTestApplication(t).routes()

	rr := send(t, h, http.MethodGet, "/book?page=x&size=1000&sort=password", "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	fields := make([]string, 0)
	for _, fe := range decode[errorsBody](t, rr).Errors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"page", "size", "sort"}, fields)
}

func TestCreateLoan(t *testing.T) {
	h := newTestApplication(t).routes()
	book := createBook(t, h, "A alcateia", "123", "Jonathan Anthony")

	loan := createLoan(t, h, "123", "jonathan")

	assert.Positive(t, loan.ID)
	assert.Equal(t, "jonathan", loan.Customer)
	assert.Equal(t, "123", loan.ISBN)
	assert.Equal(t, book, loan.Book)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, loan.LoanDate)
	assert.False(t, loan.Returned)
}

func TestCreateLoan_Failures(t *testing.T) {
	h := newTestApplication(t).routes()
	createBook(t, h, "A alcateia", "123", "Jonathan Anthony")
	createLoan(t, h, "123", "jonathan")

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"already loaned", `{"isbn":"123","customer":"maria"}`, http.StatusConflict, "Book already loaned"},
		{"unknown isbn", `{"isbn":"000","customer":"maria"}`, http.StatusNotFound, "Book not found"},
		{"blank customer", `{"isbn":"123","customer":""}`, http.StatusBadRequest, "must not be blank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := send(t, h, http.MethodPost, "/loans", tt.body)

			assert.Equal(t, tt.status, rr.Code)
			errs := decode[errorsBody](t, rr).Errors
			require.Len(t, errs, 1)
			assert.Equal(t, tt.message, errs[0].Message)
		})
	}
}

func TestReturnLoan(t *testing.T) {
	h := newTestApplication(t).routes()
	createBook(t, h, "A alcateia", "123", "Jonathan Anthony")
	loan := createLoan(t, h, "123", "jonathan")
	target := fmt.Sprintf("/loans/%d", loan.ID)

	rr := send(t, h, http.MethodPatch, target, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = send(t, h, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[service.LoanDTO](t, rr).Returned)

	// the book is available again
	createLoan(t, h, "123", "maria")
}

func TestReturnLoan_Missing(t *testing.T) {
	h := newTestApplication(t).routes()

	rr := send(t, h, http.MethodPatch, "/loans/42", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Loan not found", decode[errorsBody](t, rr).Errors[0].Message)
}

func TestListLoans(t *testing.T) {
	h := newTestApplication(t).routes()
	book := createBook(t, h, "A alcateia", "123", "Jonathan Anthony")
	createBook(t, h, "O cortiço", "456", "Aluísio Azevedo")
	first := createLoan(t, h, "123", "jonathan")
	require.Equal(t, http.StatusOK, send(t, h, http.MethodPatch, fmt.Sprintf("/loans/%d", first.ID), "").Code)
	createLoan(t, h, "123", "maria")
	createLoan(t, h, "456", "maria")

	rr := send(t, h, http.MethodGet, "/loans?customer=maria", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[data.Page[service.LoanDTO]](t, rr).TotalElements)

	rr = send(t, h, http.MethodGet, "/loans?returned=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	returned := decode[data.Page[service.LoanDTO]](t, rr)
	require.Len(t, returned.Content, 1)
	assert.Equal(t, first.ID, returned.Content[0].ID)

	rr = send(t, h, http.MethodGet, fmt.Sprintf("/book/%d/loans", *book.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[data.Page[service.LoanDTO]](t, rr).TotalElements)

	rr = send(t, h, http.MethodGet, "/loans?returned=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "returned", decode[errorsBody](t, rr).Errors[0].Field)
}

func TestRouterErrorsUseErrorPayload(t *testing.T) {
	h := newTestApplication(t).routes()

	rr := send(t, h, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotEmpty(t, decode[errorsBody](t, rr).Errors)

	rr = send(t, h, http.MethodPost, "/book/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.NotEmpty(t, decode[errorsBody](t, rr).Errors)
}

func TestHealthcheck(t *testing.T) {
	h := newTestApplication(t).routes()

	rr := send(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "available", decode[map[string]any](t, rr)["status"])
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestApplication(t).routes()

	rr := send(t, h, http.MethodGet, "/health", "")
	assert.Len(t, rr.Header().Get(requestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "3f0e8d4a-8b7e-4f7c-9a43-0a4f1f0c2b6e")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "3f0e8d4a-8b7e-4f7c-9a43-0a4f1f0c2b6e", rr.Header().Get(requestIDHeader))
}

func TestRecoverPanic(t *testing.T) {
	app := newTestApplication(t)
	h := app.recoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := send(t, h, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.NotEmpty(t, decode[errorsBody](t, rr).Errors)
}

func TestRateLimit(t *testing.T) {
	app := newTestApplication(t)
	app.config.limiter.enabled = true
	app.config.limiter.rps = 0.001
	app.config.limiter.burst = 1
	h := app.routes()

	assert.Equal(t, http.StatusOK, send(t, h, http.MethodGet, "/health", "").Code)

	rr := send(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate limit exceeded", decode[errorsBody](t, rr).Errors[0].Message)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(service.InvalidArgument))
	assert.Equal(t, http.StatusNotFound, statusFor(service.NotFound))
	assert.Equal(t, http.StatusConflict, statusFor(service.DuplicateKey))
	assert.Equal(t, http.StatusConflict, statusFor(service.Conflict))
	assert.Equal(t, http.StatusInternalServerError, statusFor(service.Kind(0)))
}

func TestBusinessErrorResponse_UnknownErrorIsServerError(t *testing.T) {
	app := newTestApplication(t)
	rr := httptest.NewRecorder()

	app.businessErrorResponse(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection reset")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestNewApplication_UnknownDriver(t *testing.T) {
	var cfg serverConfig
	cfg.db.driver = "sqlite"

	_, _, err := newApplication(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Error(t, err)
}

func TestNewServer(t *testing.T) {
	app := newTestApplication(t)
	app.config.port = 4100

	srv := app.newServer()

	assert.Equal(t, ":4100", srv.Addr)
	assert.NotNil(t, srv.Handler)
	assert.NotNil(t, srv.ErrorLog)
	assert.Equal(t, time.Minute, srv.IdleTimeout)
}

func TestWriteJSON_IndentedBodyReadsBack(t *testing.T) {
	app := newTestApplication(t)
	rr := httptest.NewRecorder()

	err := app.writeJSON(rr, http.StatusOK, envelope{"status": "available"}, http.Header{"X-Extra": []string{"1"}})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "1", rr.Header().Get("X-Extra"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "{\n  \"status\""), rr.Body.String())
	assert.True(t, strings.HasSuffix(rr.Body.String(), "}\n"), rr.Body.String())
	assert.Equal(t, "available", decode[map[string]any](t, rr)["status"])
}

func TestShowBook_BodyIsIndentedJSON(t *testing.T) {
	h := newTestApplication(t).routes()
	book := createBook(t, h, "A alcateia", "123", "Jonathan Anthony")

	rr := send(t, h, http.MethodGet, fmt.Sprintf("/book/%d", *book.ID), "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\n  \"name\"")
	assert.Equal(t, book, decode[service.BookDTO](t, rr))
}

func TestCreateBook_OversizedBody(t *testing.T) {
	h := newTestApplication(t).routes()
	body := `{"name":"` + strings.Repeat("a", maxBodyBytes+1) + `","isbn":"123","author":"x"}`

	rr := send(t, h, http.MethodPost, "/book", body)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	errs := decode[errorsBody](t, rr).Errors
	require.Len(t, errs, 1)
	assert.Equal(t, "body must not be larger than 1048576 bytes", errs[0].Message)
	assert.NotContains(t, rr.Body.String(), "BookDTO")
}

func TestCreateBook_UnknownFieldMessageHidesTypes(t *testing.T) {
	h := newTestApplication(t).routes()

	rr := send(t, h, http.MethodPost, "/book", `{"name":"a","isbn":"b","author":"c","pages":3}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "body contains unknown field", decode[errorsBody](t, rr).Errors[0].Message)
	assert.NotContains(t, rr.Body.String(), "BookDTO")
}

func TestListBooks_PagePastEndKeepsTotals(t *testing.T) {
	h := newTestApplication(t).routes()
	createBook(t, h, "A alcateia", "123", "Jonathan Anthony")

	rr := send(t, h, http.MethodGet, "/book?page=5", "")

	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[data.Page[service.BookDTO]](t, rr)
	assert.Empty(t, page.Content)
	assert.Equal(t, 1, page.TotalElements)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 5, page.Pageable.PageNumber)
}

func TestRateLimit_CleanupStopsEviction(t *testing.T) {
	var cfg serverConfig
	cfg.db.driver = driverMemory
	cfg.limiter.enabled = true
	cfg.limiter.rps = 2
	cfg.limiter.burst = 4

	app, cleanup, err := newApplication(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	app.routes()
	app.routes()

	stopped := make(chan struct{})
	go func() {
		cleanup()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("eviction goroutines still running after cleanup")
	}
}
