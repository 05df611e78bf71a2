// Package memdb is an in-process persistence gateway with the same contract as
// the Postgres stores in package data: unique isbn, at most one active loan per
// book, and no deleting books that loans still reference. Every check-and-write
// runs under one lock, so the invariants hold for concurrent callers.
package memdb

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aoideee/library-loans/internal/data"
)

type storedLoan struct {
	id       int64
	customer string
	bookID   int64
	loanDate time.Time
	returned bool
}

type db struct {
	mu         sync.RWMutex
	books      map[int64]data.Book
	loans      map[int64]storedLoan
	nextBookID int64
	nextLoanID int64
}

// Models groups the in-memory stores. Both share one database.
type Models struct {
	Books BookModel
	Loans LoanModel
}

// NewModels returns empty in-memory stores.
func NewModels() Models {
	d := &db{
		books: make(map[int64]data.Book),
		loans: make(map[int64]storedLoan),
	}

	return Models{
		Books: BookModel{db: d},
		Loans: LoanModel{db: d},
	}
}

// Ping always succeeds.
func (m Models) Ping(context.Context) error {
	return nil
}

// BookModel is the in-memory books gateway.
type BookModel struct {
	db *db
}

func (m BookModel) Insert(_ context.Context, book *data.Book) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	if m.db.isbnTakenLocked(book.ISBN, 0) {
		return data.ErrDuplicateRecord
	}

	m.db.nextBookID++
	book.ID = m.db.nextBookID
	m.db.books[book.ID] = *book

	return nil
}

func (m BookModel) Get(_ context.Context, id int64) (*data.Book, error) {
	m.db.mu.RLock()
	defer m.db.mu.RUnlock()

	book, ok := m.db.books[id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}

	return &book, nil
}

func (m BookModel) GetByISBN(_ context.Context, isbn string) (*data.Book, error) {
	m.db.mu.RLock()
	defer m.db.mu.RUnlock()

	for _, book := range m.db.books {
		if book.ISBN == isbn {
			return &book, nil
		}
	}

	return nil, data.ErrRecordNotFound
}

func (m BookModel) ExistsByISBN(_ context.Context, isbn string) (bool, error) {
	m.db.mu.RLock()
	defer m.db.mu.RUnlock()

	return m.db.isbnTakenLocked(isbn, 0), nil
}

func (m BookModel) Update(_ context.Context, book *data.Book) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	if _, ok := m.db.books[book.ID]; !ok {
		return data.ErrRecordNotFound
	}
	if m.db.isbnTakenLocked(book.ISBN, book.ID) {
		return data.ErrDuplicateRecord
	}

	m.db.books[book.ID] = *book

	return nil
}

func (m BookModel) Delete(_ context.Context, id int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	if _, ok := m.db.books[id]; !ok {
		return data.ErrRecordNotFound
	}

	for _, loan := range m.db.loans {
		if loan.bookID == id {
			return data.ErrReferencedRecord
		}
	}

	delete(m.db.books, id)

	return nil
}

func (m BookModel) Find(_ context.Context, filter data.BookFilter, page data.PageRequest) (data.Page[*data.Book], error) {
	m.db.mu.RLock()
	defer m.db.mu.RUnlock()

	found := make([]*data.Book, 0)
	for _, book := range m.db.books {
		book := book // per-iteration copy (pre-Go 1.22 loop variable semantics)
		if matchBook(filter, book) {
			found = append(found, &book)
		}
	}

	sortBy(found, page, bookColumns, func(b *data.Book) int64 { return b.ID })

	return data.NewPage(slice(found, page), page, len(found)), nil
}

// isbnTakenLocked reports whether a book other than exceptID carries isbn.
func (d *db) isbnTakenLocked(isbn string, exceptID int64) bool {
	for id, book := range d.books {
		if id != exceptID && book.ISBN == isbn {
			return true
		}
	}
	return false
}

func matchBook(filter data.BookFilter, book data.Book) bool {
	return matches(filter.Name, book.Name) &&
		matches(filter.ISBN, book.ISBN) &&
		matches(filter.Author, book.Author)
}

// LoanModel is the in-memory loans gateway.
type LoanModel struct {
	db *db
}

func (m LoanModel) Insert(_ context.Context, loan *data.Loan) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	if _, ok := m.db.books[loan.Book.ID]; !ok {
		return data.ErrReferencedRecord
	}
	if !loan.Returned && m.db.activeLoanLocked(loan.Book.ID) {
		return data.ErrDuplicateRecord
	}

	m.db.nextLoanID++
	loan.ID = m.db.nextLoanID
	m.db.loans[loan.ID] = storedLoan{
		id:       loan.ID,
		customer: loan.Customer,
		bookID:   loan.Book.ID,
		loanDate: loan.LoanDate,
		returned: loan.Returned,
	}

	return nil
}

func (m LoanModel) Get(_ context.Context, id int64) (*data.Loan, error) {
	m.db.mu.RLock()
	defer m.db.mu.RUnlock()

	stored, ok := m.db.loans[id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}

	return m.db.joinLocked(stored), nil
}

func (m LoanModel) ExistsActiveByBook(_ context.Context, bookID int64) (bool, error) {
	m.db.mu.RLock()
	defer m.db.mu.RUnlock()

	return m.db.activeLoanLocked(bookID), nil
}

// Update persists the returned flag; the other fields never change.
func (m LoanModel) Update(_ context.Context, loan *data.Loan) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	stored, ok := m.db.loans[loan.ID]
	if !ok {
		return data.ErrRecordNotFound
	}

	if stored.returned && !loan.Returned && m.db.activeLoanLocked(stored.bookID) {
		return data.ErrDuplicateRecord
	}

	stored.returned = loan.Returned
	m.db.loans[loan.ID] = stored

	return nil
}

func (m LoanModel) Find(_ context.Context, filter data.LoanFilter, page data.PageRequest) (data.Page[*data.Loan], error) {
	m.db.mu.RLock()
	defer m.db.mu.RUnlock()

	found := make([]*data.Loan, 0)
	for _, stored := range m.db.loans {
		loan := m.db.joinLocked(stored)
		if matchLoan(filter, loan) {
			found = append(found, loan)
		}
	}

	sortBy(found, page, loanColumns, func(l *data.Loan) int64 { return l.ID })

	return data.NewPage(slice(found, page), page, len(found)), nil
}

func (d *db) activeLoanLocked(bookID int64) bool {
	for _, loan := range d.loans {
		if loan.bookID == bookID && !loan.returned {
			return true
		}
	}
	return false
}

// joinLocked resolves the loan's book reference against the current book row.
func (d *db) joinLocked(stored storedLoan) *data.Loan {
	return &data.Loan{
		ID:       stored.id,
		Customer: stored.customer,
		Book:     d.books[stored.bookID],
		LoanDate: stored.loanDate,
		Returned: stored.returned,
	}
}

func matchLoan(filter data.LoanFilter, loan *data.Loan) bool {
	return matches(filter.Customer, loan.Customer) &&
		matches(filter.ISBN, loan.Book.ISBN) &&
		matches(filter.Returned, loan.Returned) &&
		matches(filter.BookID, loan.Book.ID)
}

func matches[T comparable](want *T, got T) bool {
	return want == nil || *want == got
}

// Sort columns mirror data.BookSortSafeList and data.LoanSortSafeList.
var (
	bookColumns = map[string]func(a, b *data.Book) int{
		"id":     func(a, b *data.Book) int { return cmp.Compare(a.ID, b.ID) },
		"name":   func(a, b *data.Book) int { return strings.Compare(a.Name, b.Name) },
		"isbn":   func(a, b *data.Book) int { return strings.Compare(a.ISBN, b.ISBN) },
		"author": func(a, b *data.Book) int { return strings.Compare(a.Author, b.Author) },
	}
	loanColumns = map[string]func(a, b *data.Loan) int{
		"id":        func(a, b *data.Loan) int { return cmp.Compare(a.ID, b.ID) },
		"customer":  func(a, b *data.Loan) int { return strings.Compare(a.Customer, b.Customer) },
		"loan_date": func(a, b *data.Loan) int { return a.LoanDate.Compare(b.LoanDate) },
	}
)

func sortBy[T any](items []T, page data.PageRequest, columns map[string]func(a, b T) int, id func(T) int64) {
	column := strings.TrimPrefix(page.Sort, "-")
	descending := strings.HasPrefix(page.Sort, "-")

	compare, ok := columns[column]
	if !ok || !slices.Contains(page.SortSafeList, page.Sort) {
		compare, descending = columns["id"], false
	}

	slices.SortStableFunc(items, func(a, b T) int {
		c := compare(a, b)
		if descending {
			c = -c
		}
		if c == 0 {
			return cmp.Compare(id(a), id(b))
		}
		return c
	})
}

func slice[T any](items []T, page data.PageRequest) []T {
	if page.Size <= 0 || page.Page < 0 {
		return []T{}
	}

	start := page.Page * page.Size
	if start >= len(items) {
		return []T{}
	}

	end := min(start+page.Size, len(items))
	return items[start:end]
}
