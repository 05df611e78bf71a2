// Package data provides the stored records and the Postgres persistence
// gateway for the library catalog and its loans.
package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

const (
	colID           = "id"
	colName         = "name"
	colISBN         = "isbn"
	colAuthor       = "author"
	colTotalRecords = "total_records"
)

// Book is a single row of the books table.
type Book struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	ISBN   string `db:"isbn"`
	Author string `db:"author"`
}

type bookRow struct {
	TotalRecords int `db:"total_records"`
	Book
}

// BookModel is the books table gateway.
type BookModel struct {
	DB  *sqlx.DB
	log queryLog
}

// Insert adds a new book and writes the assigned id back into book.
// Returns ErrDuplicateRecord if the isbn is already registered.
func (m BookModel) Insert(ctx context.Context, book *Book) error {
	const query = `
		INSERT INTO books (name, isbn, author)
		VALUES ($1, $2, $3)
		RETURNING id`

	start := time.Now()
	err := m.DB.QueryRowxContext(ctx, query, book.Name, book.ISBN, book.Author).Scan(&book.ID)
	m.log.sql("insert book", query, time.Since(start))
	if err != nil {
		return classifyError(err)
	}

	m.log.operation("book inserted", logAttrID, book.ID)
	return nil
}

// Get retrieves a single book by its primary key.
func (m BookModel) Get(ctx context.Context, id int64) (*Book, error) {
	if id < 1 {
		return nil, ErrRecordNotFound
	}

	const query = `
		SELECT id, name, isbn, author
		FROM books
		WHERE id = $1`

	return m.getOne(ctx, "get book", query, id)
}

// GetByISBN retrieves a single book by its natural key.
func (m BookModel) GetByISBN(ctx context.Context, isbn string) (*Book, error) {
	const query = `
		SELECT id, name, isbn, author
		FROM books
		WHERE isbn = $1`

	return m.getOne(ctx, "get book by isbn", query, isbn)
}

func (m BookModel) getOne(ctx context.Context, action, query string, arg any) (*Book, error) {
	var book Book

	start := time.Now()
	err := m.DB.GetContext(ctx, &book, query, arg)
	m.log.sql(action, query, time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			m.log.failure(logMsgDBQueryFailed, err, query)
			return nil, err
		}
	}

	return &book, nil
}

// ExistsByISBN reports whether any book carries isbn.
func (m BookModel) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1)`

	var exists bool

	start := time.Now()
	err := m.DB.GetContext(ctx, &exists, query, isbn)
	m.log.sql("book exists by isbn", query, time.Since(start))
	if err != nil {
		m.log.failure(logMsgDBQueryFailed, err, query)
		return false, err
	}

	return exists, nil
}

// Update overwrites name, isbn and author of the book identified by book.ID.
func (m BookModel) Update(ctx context.Context, book *Book) error {
	const query = `
		UPDATE books
		SET name = $1, isbn = $2, author = $3
		WHERE id = $4`

	return m.exec(ctx, "update book", query, book.Name, book.ISBN, book.Author, book.ID)
}

// Delete removes the book with the given id.
// Returns ErrReferencedRecord while loans still point at the book.
func (m BookModel) Delete(ctx context.Context, id int64) error {
	if id < 1 {
		return ErrRecordNotFound
	}

	const query = `DELETE FROM books WHERE id = $1`

	return m.exec(ctx, "delete book", query, id)
}

func (m BookModel) exec(ctx context.Context, action, query string, args ...any) error {
	start := time.Now()
	result, err := m.DB.ExecContext(ctx, query, args...)
	m.log.sql(action, query, time.Since(start))
	if err != nil {
		return classifyError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrRecordNotFound
	}

	m.log.operation(action, logAttrRowCount, rowsAffected)
	return nil
}

// Find returns the page of books matching every set field of filter.
// COUNT(*) OVER() carries the total so only one round-trip is needed.
func (m BookModel) Find(ctx context.Context, filter BookFilter, page PageRequest) (Page[*Book], error) {
	query, args, err := buildFindBooksQuery(filter, page)
	if err != nil {
		m.log.failure(logMsgBuildQuery, err, "")
		return Page[*Book]{}, err
	}

	var rows []bookRow

	start := time.Now()
	err = m.DB.SelectContext(ctx, &rows, query, args...)
	m.log.sql("find books", query, time.Since(start))
	if err != nil {
		m.log.failure(logMsgDBQueryFailed, err, query)
		return Page[*Book]{}, err
	}

	totalRecords := 0
	books := make([]*Book, 0, len(rows))
	for i := range rows {
		totalRecords = rows[i].TotalRecords
		books = append(books, &rows[i].Book)
	}

	// Past the last page no row carries the window count.
	if len(rows) == 0 && page.Page > 0 {
		query, args, err := buildCountBooksQuery(filter)
		if err != nil {
			m.log.failure(logMsgBuildQuery, err, "")
			return Page[*Book]{}, err
		}

		totalRecords, err = countRows(ctx, m.DB, m.log, "count books", query, args)
		if err != nil {
			return Page[*Book]{}, err
		}
	}

	return NewPage(books, page, totalRecords), nil
}

func buildFindBooksQuery(filter BookFilter, page PageRequest) (string, []any, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(booksTable).
		Prepared(true).
		Select(goqu.L("count(*) OVER()").As(colTotalRecords), colID, colName, colISBN, colAuthor)

	if where := bookPredicates(filter); len(where) > 0 {
		selectStmt = selectStmt.Where(where...)
	}

	selectStmt = selectStmt.
		Order(orderBy(goqu.I(page.sortColumn()), page.descending()), goqu.I(colID).Asc()).
		Limit(page.limit()).
		Offset(page.offset())

	return selectStmt.ToSQL()
}

func buildCountBooksQuery(filter BookFilter) (string, []any, error) {
	countStmt := goqu.Dialect(dialectPostgres).
		From(booksTable).
		Prepared(true).
		Select(goqu.COUNT(goqu.Star()))

	if where := bookPredicates(filter); len(where) > 0 {
		countStmt = countStmt.Where(where...)
	}

	return countStmt.ToSQL()
}

func bookPredicates(filter BookFilter) []exp.Expression {
	predicates := make([]exp.Expression, 0, 3)

	if filter.Name != nil {
		predicates = append(predicates, goqu.C(colName).Eq(*filter.Name))
	}
	if filter.ISBN != nil {
		predicates = append(predicates, goqu.C(colISBN).Eq(*filter.ISBN))
	}
	if filter.Author != nil {
		predicates = append(predicates, goqu.C(colAuthor).Eq(*filter.Author))
	}

	return predicates
}

func orderBy(col exp.IdentifierExpression, descending bool) exp.OrderedExpression {
	if descending {
		return col.Desc()
	}
	return col.Asc()
}
