package service

import (
	"context"
	"errors"
	"time"

	"github.com/aoideee/library-loans/internal/data"
)

// LoanStore is the persistence contract the loan service depends on.
type LoanStore interface {
	Insert(ctx context.Context, loan *data.Loan) error
	Get(ctx context.Context, id int64) (*data.Loan, error)
	ExistsActiveByBook(ctx context.Context, bookID int64) (bool, error)
	Update(ctx context.Context, loan *data.Loan) error
	Find(ctx context.Context, filter data.LoanFilter, page data.PageRequest) (data.Page[*data.Loan], error)
}

type LoanService struct {
	loans LoanStore
	books BookStore
	now   func() time.Time
}

// LoanOption configures a LoanService.
type LoanOption func(*LoanService)

// WithClock sets the time source used to stamp new loans.
func WithClock(now func() time.Time) LoanOption {
	return func(s *LoanService) {
		s.now = now
	}
}

func NewLoanService(loans LoanStore, books BookStore, options ...LoanOption) *LoanService {
	s := &LoanService{loans: loans, books: books, now: time.Now}
	for _, option := range options {
		option(s)
	}
	return s
}

// Save lends the book identified by req.ISBN to req.Customer, dated today.
func (s *LoanService) Save(ctx context.Context, req LoanRequest) (LoanDTO, error) {
	book, err := s.books.GetByISBN(ctx, req.ISBN)
	if err != nil {
		return LoanDTO{}, bookLookupError(err)
	}

	active, err := s.loans.ExistsActiveByBook(ctx, book.ID)
	if err != nil {
		return LoanDTO{}, err
	}
	if active {
		return LoanDTO{}, ErrBookAlreadyLoaned
	}

	loan := &data.Loan{
		Customer: req.Customer,
		Book:     *book,
		LoanDate: today(s.now()),
		Returned: false,
	}

	err = s.loans.Insert(ctx, loan)
	switch {
	case err == nil:
		return loanToDTO(loan), nil
	case errors.Is(err, data.ErrDuplicateRecord):
		return LoanDTO{}, wrap(ErrBookAlreadyLoaned, err)
	case errors.Is(err, data.ErrReferencedRecord):
		return LoanDTO{}, wrap(ErrBookNotFound, err)
	default:
		return LoanDTO{}, err
	}
}

// GiveBackBook marks the loan returned. Returning a returned loan is a no-op.
func (s *LoanService) GiveBackBook(ctx context.Context, id int64) error {
	loan, err := s.loans.Get(ctx, id)
	if err != nil {
		return loanLookupError(err)
	}

	if !loan.Active() {
		return nil
	}

	loan.Returned = true

	err = s.loans.Update(ctx, loan)
	if err != nil {
		return loanLookupError(err)
	}

	return nil
}

func (s *LoanService) GetByID(ctx context.Context, id int64) (LoanDTO, error) {
	loan, err := s.loans.Get(ctx, id)
	if err != nil {
		return LoanDTO{}, loanLookupError(err)
	}

	return loanToDTO(loan), nil
}

// Find returns the page of loans matching every field set in filter.
func (s *LoanService) Find(ctx context.Context, filter data.LoanFilter, page data.PageRequest) (data.Page[LoanDTO], error) {
	loans, err := s.loans.Find(ctx, filter, page)
	if err != nil {
		return data.Page[LoanDTO]{}, err
	}

	return data.MapPage(loans, loanToDTO), nil
}

// FindByBook returns the loans of one book, returned ones included.
func (s *LoanService) FindByBook(ctx context.Context, bookID int64, page data.PageRequest) (data.Page[LoanDTO], error) {
	return s.Find(ctx, data.LoanFilter{BookID: &bookID}, page)
}

func loanLookupError(err error) error {
	if errors.Is(err, data.ErrRecordNotFound) {
		return wrap(ErrLoanNotFound, err)
	}
	return err
}

// today truncates t to midnight UTC of its calendar date.
func today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
