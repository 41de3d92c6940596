// Package docs registers the relayd OpenAPI document with swag.
// Regenerate with `swag init -g cmd/relayd/docs.go -o internal/httpapi/docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "relayd maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/status": {
            "get": {"tags": ["admin"], "summary": "Pool status", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/v1/models": {
            "get": {"tags": ["openai"], "summary": "List models (OpenAI)", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/tags": {
            "get": {"tags": ["ollama"], "summary": "List models (Ollama)", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v0/models": {
            "get": {"tags": ["lmstudio"], "summary": "List models (LM Studio)", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/v1/chat/completions": {
            "post": {
                "tags": ["openai"],
                "summary": "Chat completion (OpenAI)",
                "description": "Set stream=true for server-sent events terminated by [DONE].",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.ChatCompletionRequest"}}],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/completions": {
            "post": {"tags": ["openai"], "summary": "Text completion (OpenAI)", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/v1/responses": {
            "post": {"tags": ["openai"], "summary": "Threaded response (OpenAI Responses)", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/chat": {
            "post": {"tags": ["ollama"], "summary": "Chat (Ollama)", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/generate": {
            "post": {"tags": ["ollama"], "summary": "Generate (Ollama)", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/v1/embeddings": {
            "post": {"tags": ["openai"], "summary": "Embeddings (OpenAI)", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}
        },
        "/api/embed": {
            "post": {"tags": ["ollama"], "summary": "Embed (Ollama)", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/v1/models/{id}/load": {
            "post": {"tags": ["admin"], "summary": "Load and pin a model", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}
        },
        "/v1/models/{id}/unload": {
            "post": {"tags": ["admin"], "summary": "Unpin and unload a model", "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/v1/catalog": {
            "get": {"tags": ["admin"], "summary": "Peer-facing model catalog", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["admin"], "summary": "Record exposure or health of a catalog entry", "consumes": ["application/json"], "responses": {"204": {"description": "No Content"}}}
        },
        "/v1/clients": {
            "get": {"tags": ["admin"], "summary": "Recently seen callers", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "invalid JSON body"}
            }
        },
        "types.Message": {
            "type": "object",
            "properties": {
                "content": {"type": "string", "example": "Hello"},
                "role": {"type": "string", "example": "user"}
            }
        },
        "types.ChatCompletionRequest": {
            "type": "object",
            "properties": {
                "max_tokens": {"type": "integer", "example": 256},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/types.Message"}},
                "model": {"type": "string", "example": "qwen2.5-7b-instruct-q4_k_m.gguf"},
                "stop": {"type": "array", "items": {"type": "string"}},
                "stream": {"type": "boolean", "example": false},
                "temperature": {"type": "number", "example": 0.7}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "relayd API",
	Description:      "OpenAI, Ollama and LM Studio compatible relay over pooled local and remote models.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
