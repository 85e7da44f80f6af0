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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/routers"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpec = `openapi: 3.0.3
info:
  title: test
  version: "1.0"
servers:
  - url: http://gateway.local/api/v1
paths:
  /api/v1/items:
    post:
      parameters:
        - name: X-User-Name
          in: header
          required: true
          schema:
            type: string
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [name]
              properties:
                name:
                  type: string
      responses:
        "200":
          description: created
`

func newValidatedEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	validator, err := NewOpenAPIValidator([]byte(testSpec), nil)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(validator.Middleware())
	engine.POST("/api/v1/items", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/api/v1/other", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.DELETE("/api/v1/items", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func postItem(engine *gin.Engine, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-Name", user)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestNewOpenAPIValidator_RejectsBrokenDocument(t *testing.T) {
	_, err := NewOpenAPIValidator([]byte("not: [an openapi"), nil)
	assert.Error(t, err)
}

func TestOpenAPIValidator_PassesValidRequest(t *testing.T) {
	engine := newValidatedEngine(t)

	rec := postItem(engine, "alice", `{"name":"book"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpenAPIValidator_RejectsMissingHeader(t *testing.T) {
	engine := newValidatedEngine(t)

	rec := postItem(engine, "", `{"name":"book"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-User-Name")
}

func TestOpenAPIValidator_RejectsInvalidBody(t *testing.T) {
	engine := newValidatedEngine(t)

	rec := postItem(engine, "alice", `{"title":"book"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errors"`)
}

func TestOpenAPIValidator_SkipsUndocumentedRoutes(t *testing.T) {
	engine := newValidatedEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/other", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpenAPIValidator_SkipsUndocumentedMethods(t *testing.T) {
	engine := newValidatedEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/items", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIsUndocumentedRoute(t *testing.T) {
	assert.True(t, isUndocumentedRoute(fmt.Errorf("route not found: %w",
		&routers.RouteError{Reason: routers.ErrPathNotFound.Error()})))
	assert.True(t, isUndocumentedRoute(&routers.RouteError{Reason: routers.ErrMethodNotAllowed.Error()}))
	assert.False(t, isUndocumentedRoute(&routers.RouteError{Reason: "some other failure"}))
	assert.False(t, isUndocumentedRoute(errors.New("request body has an error")))
}
