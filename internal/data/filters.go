package data

import (
	"math"
	"strings"

	"github.com/aoideee/library-loans/internal/validator"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	defaultSort     = "id"
)

// Sort safe lists. Sorting on anything else is rejected before a query is built.
var (
	BookSortSafeList = []string{"id", "name", "isbn", "author", "-id", "-name", "-isbn", "-author"}
	LoanSortSafeList = []string{"id", "customer", "loan_date", "-id", "-customer", "-loan_date"}
)

// PageRequest is the page descriptor for paged queries. Page is zero-based.
type PageRequest struct {
	Page         int
	Size         int
	Sort         string   // column name, prefixed with "-" for DESC
	SortSafeList []string // allowed Sort values
}

// NewPageRequest returns the first page with the default size, sorted by id.
func NewPageRequest(safeList []string) PageRequest {
	return PageRequest{Page: 0, Size: DefaultPageSize, Sort: defaultSort, SortSafeList: safeList}
}

func (p PageRequest) sortColumn() string {
	for _, safe := range p.SortSafeList {
		if p.Sort == safe {
			return strings.TrimPrefix(p.Sort, "-")
		}
	}
	return defaultSort
}

func (p PageRequest) descending() bool {
	return strings.HasPrefix(p.Sort, "-")
}

func (p PageRequest) limit() uint { return uint(p.Size) }

func (p PageRequest) offset() uint { return uint(p.Page * p.Size) }

// ValidatePageRequest records page, size and sort violations on v.
func ValidatePageRequest(v *validator.Validator, p PageRequest) {
	v.Check(p.Page >= 0, "page", "must be greater than or equal to zero")
	v.Check(p.Page <= 10_000_000, "page", "must be a maximum of 10 million")
	v.Check(p.Size > 0, "size", "must be greater than zero")
	v.Check(p.Size <= MaxPageSize, "size", "must be a maximum of 100")
	v.Check(validator.In(p.Sort, p.SortSafeList...), "sort", "invalid sort value")
}

// Pageable echoes the page descriptor back to clients.
type Pageable struct {
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
	Sort       string `json:"sort,omitempty"`
}

// Page is one slice of a larger result set.
type Page[T any] struct {
	Content       []T      `json:"content"`
	TotalElements int      `json:"totalElements"`
	TotalPages    int      `json:"totalPages"`
	Pageable      Pageable `json:"pageable"`
}

// NewPage builds a Page from its content and the total number of matching records.
func NewPage[T any](content []T, req PageRequest, totalElements int) Page[T] {
	if content == nil {
		content = []T{}
	}

	totalPages := 0
	if req.Size > 0 {
		totalPages = int(math.Ceil(float64(totalElements) / float64(req.Size)))
	}

	return Page[T]{
		Content:       content,
		TotalElements: totalElements,
		TotalPages:    totalPages,
		Pageable: Pageable{
			PageNumber: req.Page,
			PageSize:   req.Size,
			Sort:       req.Sort,
		},
	}
}

// MapPage converts the content of p with fn, keeping the paging metadata.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	content := make([]U, 0, len(p.Content))
	for _, item := range p.Content {
		content = append(content, fn(item))
	}

	return Page[U]{
		Content:       content,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		Pageable:      p.Pageable,
	}
}

// BookFilter is a query-by-example template for books.
// A nil field places no constraint; a set field must match exactly.
type BookFilter struct {
	Name   *string
	ISBN   *string
	Author *string
}

// LoanFilter is a query-by-example template for loans.
type LoanFilter struct {
	Customer *string
	ISBN     *string
	Returned *bool
	BookID   *int64
}
