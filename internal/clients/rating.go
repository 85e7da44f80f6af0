package clients

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/akriventsev/library-gateway/internal/domain"
)

// RatingClient клиент сервиса рейтинга читателей
type RatingClient struct {
	rest *restClient
}

// NewRatingClient создает клиент сервиса рейтинга
func NewRatingClient(cfg Config, opts ...Option) (*RatingClient, error) {
	rest, err := newRestClient(domain.ServiceRating, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &RatingClient{rest: rest}, nil
}

// GetRating возвращает рейтинг читателя
func (c *RatingClient) GetRating(ctx context.Context, username string) (domain.Rating, error) {
	var rating domain.Rating
	err := c.rest.do(ctx, request{
		op:       "GetRating",
		method:   http.MethodGet,
		path:     "/rating",
		username: username,
	}, &rating)
	return rating, err
}

// UpdateRating применяет изменение рейтинга. Арифметика и границы
// рейтинга на стороне сервиса.
func (c *RatingClient) UpdateRating(ctx context.Context, username string, delta int) error {
	return c.rest.do(ctx, request{
		op:       "UpdateRating",
		method:   http.MethodPut,
		path:     "/rating",
		query:    url.Values{"delta": {strconv.Itoa(delta)}},
		username: username,
	}, nil)
}
