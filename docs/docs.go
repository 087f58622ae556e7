// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/request-magic-link": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Request a magic sign-in link",
                "parameters": [{"description": "Email address", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.requestLinkRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.messageResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/auth/callback": {
            "get": {
                "tags": ["auth"],
                "summary": "Magic link landing",
                "parameters": [
                    {"type": "string", "name": "email", "in": "query", "required": true},
                    {"type": "string", "name": "token", "in": "query", "required": true}
                ],
                "responses": {"303": {"description": "See Other"}}
            }
        },
        "/auth/verify": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Redeem a magic link",
                "parameters": [{"description": "Email and link token", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.verifyRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.loginResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/auth/refresh-token": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Rotate tokens",
                "parameters": [{"description": "Refresh token", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handler.refreshRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.tokenResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["auth"],
                "summary": "Log out",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/auth/signout": {
            "get": {
                "tags": ["auth"],
                "summary": "Sign out and continue",
                "parameters": [
                    {"type": "string", "name": "callbackUrl", "in": "query"},
                    {"type": "string", "name": "intent", "in": "query"}
                ],
                "responses": {
                    "303": {"description": "See Other"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/auth/session": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.sessionResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/api/admin/maintenance": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Toggle maintenance",
                "parameters": [{"description": "Desired state", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.maintenanceRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.maintenanceResponse"}}}
            }
        },
        "/api/admin/users/{id}/role": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Change a user's role",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.changeRoleRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/admin/users/{id}/events": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Session audit trail",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.auditHistoryResponse"}}, "400": {"description": "Bad Request"}}
            }
        }
    },
    "definitions": {
        "handler.errorResponse": {"type": "object", "properties": {"error": {"type": "string"}}},
        "handler.messageResponse": {"type": "object", "properties": {"message": {"type": "string"}}},
        "handler.requestLinkRequest": {"type": "object", "required": ["email"], "properties": {"email": {"type": "string"}, "callbackUrl": {"type": "string"}}},
        "handler.verifyRequest": {"type": "object", "required": ["email", "token"], "properties": {"email": {"type": "string"}, "token": {"type": "string"}}},
        "handler.refreshRequest": {"type": "object", "properties": {"refreshToken": {"type": "string"}}},
        "handler.tokenResponse": {"type": "object", "properties": {"accessToken": {"type": "string"}, "refreshToken": {"type": "string"}, "expiresIn": {"type": "integer"}}},
        "handler.loginResponse": {"type": "object", "properties": {"accessToken": {"type": "string"}, "refreshToken": {"type": "string"}, "expiresIn": {"type": "integer"}, "redirect": {"type": "string"}}},
        "handler.sessionResponse": {"type": "object", "properties": {"role": {"type": "string"}, "expiresAt": {"type": "string"}}},
        "handler.maintenanceRequest": {"type": "object", "required": ["enabled"], "properties": {"enabled": {"type": "boolean"}}},
        "handler.maintenanceResponse": {"type": "object", "properties": {"enabled": {"type": "boolean"}}},
        "handler.changeRoleRequest": {"type": "object", "required": ["role"], "properties": {"role": {"type": "string", "enum": ["admin", "manager", "member"]}}},
        "handler.auditHistoryResponse": {"type": "object", "properties": {"userId": {"type": "integer"}, "entries": {"type": "array", "items": {"type": "object", "properties": {"id": {"type": "string"}, "kind": {"type": "string"}, "familyId": {"type": "string"}, "role": {"type": "string"}, "at": {"type": "string"}}}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Seller Auth API",
	Description:      "Magic-link sign-in, token rotation and role-gated access for Seller Center.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
