package clients

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/akriventsev/library-gateway/internal/domain"
)

// LibraryClient клиент сервиса библиотек: каталог книг, библиотеки и фонд
type LibraryClient struct {
	rest *restClient
}

// NewLibraryClient создает клиент сервиса библиотек
func NewLibraryClient(cfg Config, opts ...Option) (*LibraryClient, error) {
	rest, err := newRestClient(domain.ServiceLibrary, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &LibraryClient{rest: rest}, nil
}

// GetBook возвращает книгу каталога
func (c *LibraryClient) GetBook(ctx context.Context, bookUID string) (domain.Book, error) {
	var book domain.Book
	err := c.rest.do(ctx, request{
		op:     "GetBook",
		method: http.MethodGet,
		path:   pathf("/books/%s", bookUID),
	}, &book)
	return book, err
}

// GetLibrary возвращает библиотеку
func (c *LibraryClient) GetLibrary(ctx context.Context, libraryUID string) (domain.Library, error) {
	var lib domain.Library
	err := c.rest.do(ctx, request{
		op:     "GetLibrary",
		method: http.MethodGet,
		path:   pathf("/libraries/%s", libraryUID),
	}, &lib)
	return lib, err
}

// GetLibraryBookCondition возвращает учтенное состояние экземпляра книги в библиотеке
func (c *LibraryClient) GetLibraryBookCondition(ctx context.Context, libraryUID, bookUID string) (domain.Condition, error) {
	var book domain.LibraryBook
	err := c.rest.do(ctx, request{
		op:     "GetLibraryBookCondition",
		method: http.MethodGet,
		path:   pathf("/libraries/%s/books/%s", libraryUID, bookUID),
	}, &book)
	if err != nil {
		return "", err
	}
	return book.Condition, nil
}

// SetLibraryAvailability отмечает экземпляр выданным (available=false)
// или возвращенным (available=true)
func (c *LibraryClient) SetLibraryAvailability(ctx context.Context, libraryUID, bookUID string, available bool) error {
	return c.rest.do(ctx, request{
		op:     "SetLibraryAvailability",
		method: http.MethodPut,
		path:   pathf("/libraries/%s/books/%s", libraryUID, bookUID),
		query:  url.Values{"rent": {strconv.FormatBool(!available)}},
	}, nil)
}

// ListLibraries возвращает библиотеки города
func (c *LibraryClient) ListLibraries(ctx context.Context, city string) ([]domain.Library, error) {
	libs := []domain.Library{}
	err := c.rest.do(ctx, request{
		op:     "ListLibraries",
		method: http.MethodGet,
		path:   "/libraries",
		query:  url.Values{"city": {city}},
	}, &libs)
	return libs, err
}

// ListLibraryBooks возвращает фонд библиотеки. Без showAll сервис
// отдает только книги с ненулевым остатком.
func (c *LibraryClient) ListLibraryBooks(ctx context.Context, libraryUID string, showAll bool) ([]domain.LibraryBook, error) {
	books := []domain.LibraryBook{}
	err := c.rest.do(ctx, request{
		op:     "ListLibraryBooks",
		method: http.MethodGet,
		path:   pathf("/libraries/%s/books", libraryUID),
		query:  url.Values{"showAll": {strconv.FormatBool(showAll)}},
	}, &books)
	return books, err
}
