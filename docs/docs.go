// Package docs registers the admin API's OpenAPI document with swag so that
// gin-swagger can serve it. Regenerate with `swag init -g cmd/memebot/main.go`
// after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/threshold": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Settings"],
                "summary": "Read the repost threshold",
                "operationId": "getThreshold",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ThresholdResponse"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Takes effect for the next evaluation. Non-numeric or non-positive values are rejected and leave the stored value unchanged.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Settings"],
                "summary": "Replace the repost threshold",
                "operationId": "setThreshold",
                "parameters": [
                    {"description": "New threshold", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SetThresholdRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ThresholdResponse"}},
                    "400": {"description": "Invalid threshold", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/reposts": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Reposts"],
                "summary": "List reposted posts (paginated)",
                "operationId": "listReposts",
                "parameters": [
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListRepostsResponse"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "501": {"description": "Store cannot list", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/channels/{channel}/posts/{id}/evaluate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Runs the same pipeline as a live reaction. Safe to repeat: a post is never reposted twice.",
                "produces": ["application/json"],
                "tags": ["Reposts"],
                "summary": "Evaluate one post now",
                "operationId": "evaluatePost",
                "parameters": [
                    {"type": "string", "description": "Channel ID", "name": "channel", "in": "path", "required": true},
                    {"type": "string", "description": "Post ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.EvaluateResponse"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Evaluation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Repost": {
            "type": "object",
            "properties": {
                "post_id": {"type": "string"},
                "channel_id": {"type": "string"},
                "claimed_at": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "invalid_threshold"},
                "message": {"type": "string", "example": "threshold must be a positive integer"}
            }
        },
        "handlers.EvaluateResponse": {
            "type": "object",
            "properties": {
                "post_id": {"type": "string", "example": "1187654321098765432"},
                "outcome": {"type": "string", "example": "skipped"},
                "reason": {"type": "string", "example": "below_threshold"},
                "count": {"type": "integer", "example": 4},
                "threshold": {"type": "integer", "example": 10}
            }
        },
        "handlers.ListRepostsResponse": {
            "type": "object",
            "properties": {
                "reposts": {"type": "array", "items": {"$ref": "#/definitions/domain.Repost"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.SetThresholdRequest": {
            "type": "object",
            "properties": {
                "threshold": {"type": "integer", "example": 5}
            }
        },
        "handlers.ThresholdResponse": {
            "type": "object",
            "properties": {
                "threshold": {"type": "integer", "example": 10}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "memebot admin API",
	Description:      "Threshold management, repost history and manual evaluation for the meme curation bot.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
