// Package service holds the business rules of the catalog and loan desk.
// Services validate nothing about shape; they enforce uniqueness and loan
// state, and report failures as *Error values.
package service

import (
	"context"
	"errors"

	"github.com/aoideee/library-loans/internal/data"
)

// BookStore is the persistence contract the book service depends on.
type BookStore interface {
	Insert(ctx context.Context, book *data.Book) error
	Get(ctx context.Context, id int64) (*data.Book, error)
	GetByISBN(ctx context.Context, isbn string) (*data.Book, error)
	ExistsByISBN(ctx context.Context, isbn string) (bool, error)
	Update(ctx context.Context, book *data.Book) error
	Delete(ctx context.Context, id int64) error
	Find(ctx context.Context, filter data.BookFilter, page data.PageRequest) (data.Page[*data.Book], error)
}

type BookService struct {
	books BookStore
}

func NewBookService(books BookStore) *BookService {
	return &BookService{books: books}
}

// Save registers a new book. The isbn must not be registered yet.
func (s *BookService) Save(ctx context.Context, dto BookDTO) (BookDTO, error) {
	exists, err := s.books.ExistsByISBN(ctx, dto.ISBN)
	if err != nil {
		return BookDTO{}, err
	}
	if exists {
		return BookDTO{}, ErrDuplicatedISBN
	}

	book := bookFromDTO(dto)
	book.ID = 0

	err = s.books.Insert(ctx, book)
	if err != nil {
		if errors.Is(err, data.ErrDuplicateRecord) {
			return BookDTO{}, wrap(ErrDuplicatedISBN, err)
		}
		return BookDTO{}, err
	}

	return bookToDTO(book), nil
}

func (s *BookService) GetByID(ctx context.Context, id int64) (BookDTO, error) {
	book, err := s.books.Get(ctx, id)
	if err != nil {
		return BookDTO{}, bookLookupError(err)
	}

	return bookToDTO(book), nil
}

func (s *BookService) FindByISBN(ctx context.Context, isbn string) (BookDTO, error) {
	book, err := s.books.GetByISBN(ctx, isbn)
	if err != nil {
		return BookDTO{}, bookLookupError(err)
	}

	return bookToDTO(book), nil
}

// Delete removes a book. A zero id means no id was given.
func (s *BookService) Delete(ctx context.Context, id int64) error {
	if id == 0 {
		return ErrNullBookID
	}

	if _, err := s.books.Get(ctx, id); err != nil {
		return bookLookupError(err)
	}

	err := s.books.Delete(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, data.ErrRecordNotFound):
		return wrap(ErrBookNotFound, err)
	case errors.Is(err, data.ErrReferencedRecord):
		return wrap(ErrBookHasLoans, err)
	default:
		return err
	}
}

// Update overwrites name, isbn and author of an existing book and returns
// dto as given.
func (s *BookService) Update(ctx context.Context, dto *BookDTO) (*BookDTO, error) {
	if dto == nil {
		return nil, ErrNullBook
	}
	if dto.ID == nil {
		return nil, ErrNullBookID
	}

	book, err := s.books.Get(ctx, *dto.ID)
	if err != nil {
		return nil, bookLookupError(err)
	}

	book.Name = dto.Name
	book.ISBN = dto.ISBN
	book.Author = dto.Author

	err = s.books.Update(ctx, book)
	switch {
	case err == nil:
		return dto, nil
	case errors.Is(err, data.ErrRecordNotFound):
		return nil, wrap(ErrBookNotFound, err)
	case errors.Is(err, data.ErrDuplicateRecord):
		return nil, wrap(ErrDuplicatedISBN, err)
	default:
		return nil, err
	}
}

// Find returns the page of books matching every field set in filter.
func (s *BookService) Find(ctx context.Context, filter data.BookFilter, page data.PageRequest) (data.Page[BookDTO], error) {
	books, err := s.books.Find(ctx, filter, page)
	if err != nil {
		return data.Page[BookDTO]{}, err
	}

	return data.MapPage(books, bookToDTO), nil
}

func bookLookupError(err error) error {
	if errors.Is(err, data.ErrRecordNotFound) {
		return wrap(ErrBookNotFound, err)
	}
	return err
}
