// Package docs registers the OpenAPI description served at /api/swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/posts": {
            "get": {
                "description": "Newest-first posts with like counts. Pass nextCursor back as cursor for the next page.",
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "List the feed",
                "parameters": [
                    {"type": "string", "description": "Cursor from a previous page", "name": "cursor", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.FeedPage"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/posts/{id}/image": {
            "get": {
                "description": "Absolute URLs are returned as stored; bucket keys are signed for one hour.",
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Resolve a post's image URL",
                "parameters": [
                    {"type": "integer", "description": "Post ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"url": {"type": "string"}}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/likes": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["likes"],
                "summary": "Like a post",
                "parameters": [
                    {"description": "Post to like", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.PostRef"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.OK"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Succeeds whether or not the caller had liked the post.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["likes"],
                "summary": "Remove a like",
                "parameters": [
                    {"description": "Post to unlike", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.PostRef"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.OK"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/upload": {
            "get": {
                "produces": ["application/json"],
                "tags": ["upload"],
                "summary": "Describe the upload pipeline",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.UploadCapabilities"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Downscales to the configured bound, stores the image and creates the post.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["upload"],
                "summary": "Upload a photo",
                "parameters": [
                    {"type": "file", "description": "Image", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Caption", "name": "caption", "in": "formData"},
                    {"type": "string", "description": "Location JSON object", "name": "location", "in": "formData"},
                    {"type": "string", "description": "Identity provider metadata JSON", "name": "userData", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"post": {"$ref": "#/definitions/models.Post"}}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/share": {
            "post": {
                "description": "Every call increments the post's share count.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Count a share",
                "parameters": [
                    {"description": "Shared post", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.PostRef"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.OK"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/profile/sync": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["profile"],
                "summary": "Ensure the caller has a profile",
                "parameters": [
                    {"description": "Identity provider metadata", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/models.ProfileMetadata"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.OK"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/profile/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["profile"],
                "summary": "Get the caller's profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Profile"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"},
                "stage": {"type": "string"},
                "details": {"type": "string"}
            }
        },
        "models.Profile": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "username": {"type": "string"},
                "display_name": {"type": "string"},
                "avatar_url": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "models.ProfileMetadata": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "displayName": {"type": "string"},
                "profilePictureUrl": {"type": "string"}
            }
        },
        "models.Post": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "profile_id": {"type": "integer"},
                "author": {"$ref": "#/definitions/models.Profile"},
                "image_path": {"type": "string"},
                "caption": {"type": "string"},
                "location": {"type": "object"},
                "share_count": {"type": "integer"},
                "created_at": {"type": "string"},
                "like_count": {"type": "integer"},
                "liked": {"type": "boolean"}
            }
        },
        "models.FeedPage": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/models.Post"}},
                "nextCursor": {"type": "string", "x-nullable": true}
            }
        },
        "server.PostRef": {
            "type": "object",
            "properties": {
                "postId": {"type": "integer"}
            }
        },
        "server.OK": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"}
            }
        },
        "server.UploadCapabilities": {
            "type": "object",
            "properties": {
                "outputFormat": {"type": "string"},
                "maxDimension": {"type": "integer"},
                "maxUploadMb": {"type": "integer"},
                "accepts": {"type": "array", "items": {"type": "string"}},
                "storage": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the identity provider session token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8375",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "Shutter API",
	Description:      "Photo sharing feed: uploads, likes, shares and signed image URLs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
