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
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/library-gateway/framework/core"
)

// SwaggerUIConfig конфигурация для Swagger UI
type SwaggerUIConfig struct {
	Enabled                bool
	Path                   string
	DeepLinking            bool
	DisplayRequestDuration bool
}

// DefaultSwaggerUIConfig возвращает конфигурацию Swagger UI по умолчанию
func DefaultSwaggerUIConfig() SwaggerUIConfig {
	return SwaggerUIConfig{
		Enabled:                true,
		Path:                   "/swagger",
		DeepLinking:            true,
		DisplayRequestDuration: true,
	}
}

// SwaggerUI отдает OpenAPI документ и страницу Swagger UI для него
type SwaggerUI struct {
	config SwaggerUIConfig
	spec   []byte
}

// NewSwaggerUI создает Swagger UI для документа, встроенного в бинарник
func NewSwaggerUI(config SwaggerUIConfig, spec []byte) (*SwaggerUI, error) {
	if len(spec) == 0 {
		return nil, core.NewError(core.ErrInvalidConfig, "OpenAPI spec is empty")
	}
	if config.Path == "" || config.Path[0] != '/' {
		return nil, core.NewError(core.ErrInvalidConfig, fmt.Sprintf("swagger path %q must start with /", config.Path))
	}
	return &SwaggerUI{config: config, spec: spec}, nil
}

// RegisterRoutes регистрирует маршруты Swagger UI
func (s *SwaggerUI) RegisterRoutes(router gin.IRouter) {
	if !s.config.Enabled {
		return
	}
	group := router.Group(s.config.Path)
	group.GET("/openapi.yaml", s.serveSpec)
	group.GET("/", s.serveUI)
	group.GET("/index.html", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, s.config.Path+"/")
	})
}

func (s *SwaggerUI) serveSpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", s.spec)
}

func (s *SwaggerUI) serveUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(s.page()))
}

func (s *SwaggerUI) page() string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Library Gateway API</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "%s/openapi.yaml",
        dom_id: '#swagger-ui',
        deepLinking: %t,
        displayRequestDuration: %t
      });
    };
  </script>
</body>
</html>`, s.config.Path, s.config.DeepLinking, s.config.DisplayRequestDuration)
}
