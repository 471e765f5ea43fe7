// Package docs holds the OpenAPI document served under /swagger when the
// binary is built with -tags=swagger. Regenerate with swag init.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "emotiond maintainers"},
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/emotion-detection": {
            "get": {
                "description": "Upgrades to a websocket carrying {event, data} envelopes. The token comes from the token query parameter or an Authorization bearer header.",
                "tags": ["realtime"],
                "summary": "Realtime emotion detection channel",
                "parameters": [
                    {"type": "string", "name": "token", "in": "query"},
                    {"type": "string", "name": "Authorization", "in": "header"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "List classifier models",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Live sessions and inference state",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/healthz": {"get": {"tags": ["health"], "summary": "Liveness", "responses": {"200": {"description": "ok"}}}},
        "/readyz": {"get": {"tags": ["health"], "summary": "Readiness", "responses": {"200": {"description": "ready"}, "503": {"description": "loading"}}}}
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 503},
                "error": {"type": "string", "example": "server is at capacity"}
            }
        },
        "types.Model": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "emotion-vit.onnx"},
                "name": {"type": "string", "example": "emotion-vit"},
                "path": {"type": "string"},
                "format": {"type": "string", "example": "onnx"},
                "size_bytes": {"type": "integer"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}
            }
        },
        "types.SessionStatus": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "user_id": {"type": "string"},
                "client_id": {"type": "string"},
                "state": {"type": "string", "example": "processing"},
                "inflight": {"type": "boolean"},
                "processed_frames": {"type": "integer"},
                "dropped_frames": {"type": "integer"},
                "fps": {"type": "number"},
                "connected_at_unix": {"type": "integer"},
                "rooms": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "sessions": {"type": "array", "items": {"$ref": "#/definitions/types.SessionStatus"}},
                "active_connections": {"type": "integer"},
                "max_connections": {"type": "integer"},
                "model_loaded": {"type": "boolean"},
                "last_error": {"type": "string"},
                "uptime_seconds": {"type": "integer"},
                "server_time_unix": {"type": "integer"}
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
	Title:            "emotiond API",
	Description:      "Realtime facial emotion detection over websocket.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
