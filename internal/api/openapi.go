package api

import _ "embed"

// OpenAPIDocument описание HTTP интерфейса шлюза в формате OpenAPI 3
//
//go:embed openapi.yaml
var OpenAPIDocument []byte
