package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

const (
	loanAlias = "l"
	bookAlias = "b"
)

// Loan is a row of the loans table joined with the book it references.
// Book always reflects the current book row, never a copy taken at loan time.
type Loan struct {
	ID       int64
	Customer string
	Book     Book
	LoanDate time.Time
	Returned bool
}

// Active reports whether the book has not been returned yet.
func (l Loan) Active() bool {
	return !l.Returned
}

type loanRow struct {
	TotalRecords int       `db:"total_records"`
	ID           int64     `db:"id"`
	Customer     string    `db:"customer"`
	LoanDate     time.Time `db:"loan_date"`
	Returned     bool      `db:"returned"`
	BookID       int64     `db:"book_id"`
	BookName     string    `db:"book_name"`
	BookISBN     string    `db:"book_isbn"`
	BookAuthor   string    `db:"book_author"`
}

func (r loanRow) toLoan() *Loan {
	return &Loan{
		ID:       r.ID,
		Customer: r.Customer,
		LoanDate: r.LoanDate,
		Returned: r.Returned,
		Book: Book{
			ID:     r.BookID,
			Name:   r.BookName,
			ISBN:   r.BookISBN,
			Author: r.BookAuthor,
		},
	}
}

// LoanModel is the loans table gateway.
type LoanModel struct {
	DB  *sqlx.DB
	log queryLog
}

// Insert adds a new loan for loan.Book and writes the assigned id back into loan.
// Returns ErrDuplicateRecord if the book already has an active loan.
func (m LoanModel) Insert(ctx context.Context, loan *Loan) error {
	const query = `
		INSERT INTO loans (customer, book_id, loan_date, returned)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	start := time.Now()
	err := m.DB.QueryRowxContext(ctx, query, loan.Customer, loan.Book.ID, loan.LoanDate, loan.Returned).Scan(&loan.ID)
	m.log.sql("insert loan", query, time.Since(start))
	if err != nil {
		return classifyError(err)
	}

	m.log.operation("loan inserted", logAttrID, loan.ID)
	return nil
}

// Get retrieves a single loan, joined with its book, by primary key.
func (m LoanModel) Get(ctx context.Context, id int64) (*Loan, error) {
	if id < 1 {
		return nil, ErrRecordNotFound
	}

	query, args, err := selectLoans().
		Where(loanCol(colID).Eq(id)).
		ToSQL()
	if err != nil {
		m.log.failure(logMsgBuildQuery, err, "")
		return nil, err
	}

	var row loanRow

	start := time.Now()
	err = m.DB.GetContext(ctx, &row, query, args...)
	m.log.sql("get loan", query, time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			m.log.failure(logMsgDBQueryFailed, err, query)
			return nil, err
		}
	}

	return row.toLoan(), nil
}

// ExistsActiveByBook reports whether bookID has a loan that was not returned.
func (m LoanModel) ExistsActiveByBook(ctx context.Context, bookID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM loans WHERE book_id = $1 AND NOT returned)`

	var exists bool

	start := time.Now()
	err := m.DB.GetContext(ctx, &exists, query, bookID)
	m.log.sql("active loan exists by book", query, time.Since(start))
	if err != nil {
		m.log.failure(logMsgDBQueryFailed, err, query)
		return false, err
	}

	return exists, nil
}

// Update persists the returned flag, the only field of a loan that changes
// after creation.
func (m LoanModel) Update(ctx context.Context, loan *Loan) error {
	const query = `UPDATE loans SET returned = $1 WHERE id = $2`

	start := time.Now()
	result, err := m.DB.ExecContext(ctx, query, loan.Returned, loan.ID)
	m.log.sql("update loan", query, time.Since(start))
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

	m.log.operation("loan updated", logAttrID, loan.ID)
	return nil
}

// Find returns the page of loans matching every set field of filter.
func (m LoanModel) Find(ctx context.Context, filter LoanFilter, page PageRequest) (Page[*Loan], error) {
	query, args, err := buildFindLoansQuery(filter, page)
	if err != nil {
		m.log.failure(logMsgBuildQuery, err, "")
		return Page[*Loan]{}, err
	}

	var rows []loanRow

	start := time.Now()
	err = m.DB.SelectContext(ctx, &rows, query, args...)
	m.log.sql("find loans", query, time.Since(start))
	if err != nil {
		m.log.failure(logMsgDBQueryFailed, err, query)
		return Page[*Loan]{}, err
	}

	totalRecords := 0
	loans := make([]*Loan, 0, len(rows))
	for _, row := range rows {
		totalRecords = row.TotalRecords
		loans = append(loans, row.toLoan())
	}

	// Past the last page no row carries the window count.
	if len(rows) == 0 && page.Page > 0 {
		query, args, err := buildCountLoansQuery(filter)
		if err != nil {
			m.log.failure(logMsgBuildQuery, err, "")
			return Page[*Loan]{}, err
		}

		totalRecords, err = countRows(ctx, m.DB, m.log, "count loans", query, args)
		if err != nil {
			return Page[*Loan]{}, err
		}
	}

	return NewPage(loans, page, totalRecords), nil
}

// fromLoans is loans joined with the books they reference.
func fromLoans() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(goqu.T(loansTable).As(loanAlias)).
		InnerJoin(goqu.T(booksTable).As(bookAlias), goqu.On(loanCol("book_id").Eq(bookCol(colID)))).
		Prepared(true)
}

// selectLoans is the loans-join-books projection shared by Get and Find.
func selectLoans(extra ...any) *goqu.SelectDataset {
	cols := append(extra,
		loanCol(colID),
		loanCol("customer"),
		loanCol("loan_date"),
		loanCol("returned"),
		bookCol(colID).As("book_id"),
		bookCol(colName).As("book_name"),
		bookCol(colISBN).As("book_isbn"),
		bookCol(colAuthor).As("book_author"),
	)

	return fromLoans().Select(cols...)
}

func buildFindLoansQuery(filter LoanFilter, page PageRequest) (string, []any, error) {
	selectStmt := selectLoans(goqu.L("count(*) OVER()").As(colTotalRecords))

	if where := loanPredicates(filter); len(where) > 0 {
		selectStmt = selectStmt.Where(where...)
	}

	selectStmt = selectStmt.
		Order(orderBy(loanCol(page.sortColumn()), page.descending()), loanCol(colID).Asc()).
		Limit(page.limit()).
		Offset(page.offset())

	return selectStmt.ToSQL()
}

func buildCountLoansQuery(filter LoanFilter) (string, []any, error) {
	countStmt := fromLoans().Select(goqu.COUNT(goqu.Star()))

	if where := loanPredicates(filter); len(where) > 0 {
		countStmt = countStmt.Where(where...)
	}

	return countStmt.ToSQL()
}

func loanPredicates(filter LoanFilter) []exp.Expression {
	predicates := make([]exp.Expression, 0, 4)

	if filter.Customer != nil {
		predicates = append(predicates, loanCol("customer").Eq(*filter.Customer))
	}
	if filter.ISBN != nil {
		predicates = append(predicates, bookCol(colISBN).Eq(*filter.ISBN))
	}
	if filter.Returned != nil {
		predicates = append(predicates, loanCol("returned").Eq(*filter.Returned))
	}
	if filter.BookID != nil {
		predicates = append(predicates, loanCol("book_id").Eq(*filter.BookID))
	}

	return predicates
}

func loanCol(name string) exp.IdentifierExpression {
	return goqu.T(loanAlias).Col(name)
}

func bookCol(name string) exp.IdentifierExpression {
	return goqu.T(bookAlias).Col(name)
}
