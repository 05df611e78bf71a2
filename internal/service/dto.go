package service

import (
	"github.com/aoideee/library-loans/internal/data"
)

// LoanDateLayout is the wire format of Loan.LoanDate.
const LoanDateLayout = "2006-01-02"

// BookDTO is the external representation of a book.
type BookDTO struct {
	ID     *int64 `json:"id,omitempty"`
	Name   string `json:"name" validate:"notblank"`
	ISBN   string `json:"isbn" validate:"notblank"`
	Author string `json:"author" validate:"notblank"`
}

// LoanRequest is the payload for borrowing a book.
type LoanRequest struct {
	ID       *int64 `json:"id,omitempty"`
	ISBN     string `json:"isbn" validate:"notblank"`
	Customer string `json:"customer" validate:"notblank"`
}

// LoanDTO is the external representation of a loan.
type LoanDTO struct {
	ID       int64   `json:"id"`
	ISBN     string  `json:"isbn"`
	Customer string  `json:"customer"`
	Book     BookDTO `json:"book"`
	LoanDate string  `json:"loanDate"`
	Returned bool    `json:"returned"`
}

func bookToDTO(b *data.Book) BookDTO {
	id := b.ID
	return BookDTO{
		ID:     &id,
		Name:   b.Name,
		ISBN:   b.ISBN,
		Author: b.Author,
	}
}

func bookFromDTO(dto BookDTO) *data.Book {
	b := &data.Book{
		Name:   dto.Name,
		ISBN:   dto.ISBN,
		Author: dto.Author,
	}
	if dto.ID != nil {
		b.ID = *dto.ID
	}
	return b
}

func loanToDTO(l *data.Loan) LoanDTO {
	return LoanDTO{
		ID:       l.ID,
		ISBN:     l.Book.ISBN,
		Customer: l.Customer,
		Book:     bookToDTO(&l.Book),
		LoanDate: l.LoanDate.Format(LoanDateLayout),
		Returned: l.Returned,
	}
}
