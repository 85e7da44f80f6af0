// Package api реализует входящий HTTP интерфейс шлюза: выдачу и возврат
// книг, чтение броней, библиотек и рейтинга, а также служебные маршруты.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/breaker"
	"github.com/akriventsev/library-gateway/framework/observability"
	"github.com/akriventsev/library-gateway/internal/domain"
	"github.com/akriventsev/library-gateway/internal/orchestrator"
)

// UserHeader заголовок с именем читателя
const UserHeader = "X-User-Name"

const userKey = "username"

// Service операции оркестратора, доступные через HTTP
type Service interface {
	TakeBook(ctx context.Context, req orchestrator.TakeBookRequest) (*orchestrator.TakeBookResult, error)
	ReturnBook(ctx context.Context, req orchestrator.ReturnBookRequest) (*orchestrator.ReturnResult, error)
	ListReservations(ctx context.Context, username string) ([]orchestrator.ReservationView, error)
	ListLibraries(ctx context.Context, city string) ([]domain.Library, error)
	ListLibraryBooks(ctx context.Context, libraryUID string, showAll bool) ([]domain.LibraryBook, error)
	GetRating(ctx context.Context, username string) (domain.Rating, error)
}

// BreakerStates источник состояний circuit breaker для health
type BreakerStates interface {
	States() map[string]breaker.State
}

// Option настраивает Handler
type Option func(*Handler)

// WithLogger задает логгер
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMiddleware добавляет middleware группы API, например валидацию OpenAPI
func WithMiddleware(handlers ...gin.HandlerFunc) Option {
	return func(h *Handler) {
		h.middleware = append(h.middleware, handlers...)
	}
}

// WithHealthChecker добавляет в health проверки зависимостей
func WithHealthChecker(checker *observability.HealthChecker) Option {
	return func(h *Handler) { h.checker = checker }
}

// Handler HTTP обработчики шлюза
type Handler struct {
	service    Service
	breakers   BreakerStates
	checker    *observability.HealthChecker
	logger     *zap.Logger
	middleware []gin.HandlerFunc
}

// NewHandler создает обработчики поверх оркестратора
func NewHandler(service Service, breakers BreakerStates, opts ...Option) (*Handler, error) {
	if service == nil {
		return nil, errors.New("api: service is required")
	}
	if breakers == nil {
		return nil, errors.New("api: breaker states are required")
	}
	h := &Handler{
		service:  service,
		breakers: breakers,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register регистрирует маршруты API в группе с базовым префиксом
func (h *Handler) Register(group *gin.RouterGroup) {
	routes := group.Group("", h.middleware...)

	reservations := routes.Group("/reservations", requireUser())
	reservations.GET("", h.listReservations)
	reservations.POST("", h.takeBook)
	reservations.POST("/:reservationUid/return", h.returnBook)

	routes.GET("/libraries", h.listLibraries)
	routes.GET("/libraries/:libraryUid/books", h.listLibraryBooks)
	routes.GET("/rating", requireUser(), h.getRating)
}

// RegisterManagement регистрирует health и, если передан, обработчик метрик
func (h *Handler) RegisterManagement(router gin.IRouter, metricsHandler http.Handler) {
	router.GET("/manage/health", h.health)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetHeader(UserHeader)
		if username == "" {
			abort(c, http.StatusBadRequest, UserHeader+" header is required")
			return
		}
		c.Set(userKey, username)
		c.Next()
	}
}

func (h *Handler) listReservations(c *gin.Context) {
	views, err := h.service.ListReservations(c.Request.Context(), c.GetString(userKey))
	if err != nil {
		h.fail(c, "list reservations", err)
		return
	}
	c.JSON(http.StatusOK, reservationList(views))
}

func (h *Handler) takeBook(c *gin.Context) {
	var body TakeBookRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !validUUID(body.BookUID) || !validUUID(body.LibraryUID) {
		abort(c, http.StatusBadRequest, "bookUid and libraryUid must be UUIDs")
		return
	}
	tillDate, err := domain.ParseDate(body.TillDate)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid tillDate: "+err.Error())
		return
	}

	res, err := h.service.TakeBook(c.Request.Context(), orchestrator.TakeBookRequest{
		Username:   c.GetString(userKey),
		BookUID:    body.BookUID,
		LibraryUID: body.LibraryUID,
		TillDate:   tillDate,
	})
	if err != nil {
		h.fail(c, "take book", err)
		return
	}
	c.JSON(http.StatusOK, takeBookResponse(res))
}

func (h *Handler) returnBook(c *gin.Context) {
	reservationUID := c.Param("reservationUid")
	if !validUUID(reservationUID) {
		abort(c, http.StatusBadRequest, "reservationUid must be a UUID")
		return
	}

	var body ReturnBookRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	condition, err := domain.ParseCondition(body.Condition)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	var date domain.Date
	if body.Date != "" {
		if date, err = domain.ParseDate(body.Date); err != nil {
			abort(c, http.StatusBadRequest, "invalid date: "+err.Error())
			return
		}
	}

	res, err := h.service.ReturnBook(c.Request.Context(), orchestrator.ReturnBookRequest{
		ReservationUID: reservationUID,
		Username:       c.GetString(userKey),
		Date:           date,
		Condition:      condition,
	})
	if err != nil {
		h.fail(c, "return book", err)
		return
	}
	if len(res.Queued) > 0 {
		h.logger.Info("return completed with queued corrections",
			zap.String("reservation_uid", reservationUID),
			zap.Any("queued", res.Queued),
		)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listLibraries(c *gin.Context) {
	libraries, err := h.service.ListLibraries(c.Request.Context(), c.Query("city"))
	if err != nil {
		h.fail(c, "list libraries", err)
		return
	}
	if libraries == nil {
		libraries = []domain.Library{}
	}
	c.JSON(http.StatusOK, libraries)
}

func (h *Handler) listLibraryBooks(c *gin.Context) {
	libraryUID := c.Param("libraryUid")
	if !validUUID(libraryUID) {
		abort(c, http.StatusBadRequest, "libraryUid must be a UUID")
		return
	}
	showAll := false
	if raw := c.Query("showAll"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			abort(c, http.StatusBadRequest, "showAll must be a boolean")
			return
		}
		showAll = v
	}

	books, err := h.service.ListLibraryBooks(c.Request.Context(), libraryUID, showAll)
	if err != nil {
		h.fail(c, "list library books", err)
		return
	}
	if books == nil {
		books = []domain.LibraryBook{}
	}
	c.JSON(http.StatusOK, books)
}

func (h *Handler) getRating(c *gin.Context) {
	rating, err := h.service.GetRating(c.Request.Context(), c.GetString(userKey))
	if err != nil {
		h.fail(c, "get rating", err)
		return
	}
	c.JSON(http.StatusOK, rating)
}

// health: DOWN (503) при отказе зависимости, DEGRADED при открытом breaker
func (h *Handler) health(c *gin.Context) {
	resp := HealthResponse{Status: "UP", Breakers: map[string]string{}}
	for name, state := range h.breakers.States() {
		resp.Breakers[name] = string(state)
		if state == breaker.StateOpen {
			resp.Status = "DEGRADED"
		}
	}
	if h.checker != nil {
		result := h.checker.Check(c.Request.Context())
		resp.Checks = result.Checks
		if !result.Healthy {
			resp.Status = "DOWN"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// fail пишет ответ с ошибкой и журналирует серверные отказы
func (h *Handler) fail(c *gin.Context, op string, err error) {
	status, message := statusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn(op+" failed",
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	abort(c, status, message)
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Message: message})
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
