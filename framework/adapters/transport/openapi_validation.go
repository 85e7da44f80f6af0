// Copyright 2024 Potter Framework Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ValidationOptions опции для валидации OpenAPI
type ValidationOptions struct {
	ValidateRequest       bool
	ValidateResponse      bool
	IncludeResponseStatus bool
	MultiError            bool
	CustomSchemaErrorFunc func(error) string
	Logger                *zap.Logger
}

// DefaultValidationOptions возвращает опции валидации по умолчанию
func DefaultValidationOptions() *ValidationOptions {
	return &ValidationOptions{
		ValidateRequest:       true,
		ValidateResponse:      false,
		IncludeResponseStatus: true,
		MultiError:            true,
	}
}

// OpenAPIValidator валидатор HTTP запросов по OpenAPI спецификации
type OpenAPIValidator struct {
	spec    *openapi3.T
	router  routers.Router
	options *ValidationOptions
	logger  *zap.Logger
}

// NewOpenAPIValidator создает валидатор из документа, встроенного в бинарник.
// Пути документа сопоставляются с полным путем запроса, поэтому секция
// servers не используется.
func NewOpenAPIValidator(data []byte, options *ValidationOptions) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()

	spec, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	// Маршруты сопоставляются по путям без учета серверов
	spec.Servers = nil

	router, err := legacy.NewRouter(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	if options == nil {
		options = DefaultValidationOptions()
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAPIValidator{
		spec:    spec,
		router:  router,
		options: options,
		logger:  logger,
	}, nil
}

// responseWriter обертка для gin.ResponseWriter для перехвата ответа
type responseWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) WriteString(s string) (int, error) {
	rw.body.WriteString(s)
	return rw.ResponseWriter.WriteString(s)
}

// Middleware возвращает Gin middleware для валидации запросов
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v.options.ValidateRequest {
			err := v.ValidateRequest(c)
			switch {
			case err == nil:
			case isUndocumentedRoute(err):
				// Маршруты вне документа обслуживаются без валидации
			default:
				v.handleValidationError(c, err)
				c.Abort()
				return
			}
		}

		if !v.options.ValidateResponse {
			c.Next()
			return
		}

		rw := &responseWriter{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		// Ответ уже отправлен клиенту, несоответствие только журналируется
		if err := v.ValidateResponse(c, rw.Status(), rw.body.Bytes()); err != nil {
			v.logger.Warn("response does not match OpenAPI document",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", rw.Status()),
				zap.Error(err),
			)
		}
	}
}

// isUndocumentedRoute сообщает, что путь или метод отсутствуют в документе.
// Роутер возвращает новый RouteError, сравнивается только Reason.
func isUndocumentedRoute(err error) bool {
	var routeErr *routers.RouteError
	if !errors.As(err, &routeErr) {
		return false
	}
	return routeErr.Reason == routers.ErrPathNotFound.Error() ||
		routeErr.Reason == routers.ErrMethodNotAllowed.Error()
}

// ValidateRequest валидирует HTTP запрос по OpenAPI спецификации
func (v *OpenAPIValidator) ValidateRequest(c *gin.Context) error {
	route, pathParams, err := v.router.FindRoute(c.Request)
	if err != nil {
		return fmt.Errorf("route not found: %w", err)
	}

	input := &openapi3filter.RequestValidationInput{
		Request:     c.Request,
		PathParams:  pathParams,
		Route:       route,
		QueryParams: c.Request.URL.Query(),
		Options: &openapi3filter.Options{
			MultiError: v.options.MultiError,
		},
	}

	return openapi3filter.ValidateRequest(c.Request.Context(), input)
}

// ValidateResponse валидирует HTTP ответ по OpenAPI спецификации
func (v *OpenAPIValidator) ValidateResponse(c *gin.Context, statusCode int, body []byte) error {
	if !v.options.ValidateResponse {
		return nil
	}

	route, pathParams, err := v.router.FindRoute(c.Request)
	if err != nil {
		// Для маршрутов вне документа сверять нечего
		return nil
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:     c.Request,
			PathParams:  pathParams,
			Route:       route,
			QueryParams: c.Request.URL.Query(),
		},
		Status: statusCode,
		Header: c.Writer.Header(),
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			IncludeResponseStatus: v.options.IncludeResponseStatus,
			MultiError:            v.options.MultiError,
		},
	}

	if err := openapi3filter.ValidateResponse(c.Request.Context(), input); err != nil {
		return fmt.Errorf("response validation failed: %w", err)
	}
	return nil
}

// handleValidationError отвечает 400 со списком нарушений
func (v *OpenAPIValidator) handleValidationError(c *gin.Context, err error) {
	details := v.formatValidationError(err)

	messages := make([]string, 0, len(details))
	for _, d := range details {
		messages = append(messages, d.Message)
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"message": strings.Join(messages, "; "),
		"errors":  details,
	})
}

// formatValidationError раскладывает ошибку kin-openapi на отдельные нарушения
func (v *OpenAPIValidator) formatValidationError(err error) []ValidationError {
	var multi openapi3.MultiError
	if !errors.As(err, &multi) {
		return []ValidationError{v.parseSingleError(err)}
	}

	result := make([]ValidationError, 0, len(multi))
	for _, item := range multi {
		var nested openapi3.MultiError
		if errors.As(item, &nested) {
			result = append(result, v.formatValidationError(nested)...)
			continue
		}
		result = append(result, v.parseSingleError(item))
	}
	if len(result) == 0 {
		result = append(result, v.parseSingleError(err))
	}
	return result
}

// parseSingleError извлекает поле и причину из одиночной ошибки
func (v *OpenAPIValidator) parseSingleError(err error) ValidationError {
	ve := ValidationError{Message: err.Error()}

	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			ve.Field = reqErr.Parameter.Name
		case reqErr.RequestBody != nil:
			ve.Field = "body"
		}
		if reqErr.Reason != "" {
			ve.Message = reqErr.Reason
		}
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		if pointer := schemaErr.JSONPointer(); len(pointer) > 0 {
			ve.Field = strings.Join(pointer, ".")
		}
		ve.Schema = schemaErr.SchemaField
		ve.Message = schemaErr.Reason
	}

	if v.options.CustomSchemaErrorFunc != nil {
		ve.Message = v.options.CustomSchemaErrorFunc(err)
	}
	return ve
}

// ValidationError структура ошибки валидации
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Schema  string `json:"schema,omitempty"`
}

// GetSpec возвращает загруженную OpenAPI спецификацию
func (v *OpenAPIValidator) GetSpec() *openapi3.T {
	return v.spec
}
