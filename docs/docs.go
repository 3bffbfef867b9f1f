// Package docs registers the OpenAPI description served under /swagger.
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
        "/tasks": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "List tasks",
                "parameters": [{"type": "string", "description": "addedAt (newest first) or status", "name": "sort", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Task"}}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Create task",
                "parameters": [{"description": "Task", "name": "task", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.Task"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.Task"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/tasks/{id}": {
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Update task",
                "parameters": [
                    {"type": "string", "description": "Task id", "name": "id", "in": "path", "required": true},
                    {"description": "Task", "name": "task", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.Task"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Task"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "delete": {
                "tags": ["Tasks"],
                "summary": "Delete task",
                "parameters": [{"type": "string", "description": "Task id", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}
            }
        },
        "/logs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Logs"],
                "summary": "Activity log",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.LogEntry"}}}}
            }
        },
        "/sync/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Sync status",
                "description": "Connectivity, queue sizes and the last drain result",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "models.Task": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "location": {"type": "string"},
                "dateTime": {"type": "string"},
                "addedAt": {"type": "string"},
                "status": {"type": "string", "enum": ["In Progress", "Completed", "Cancelled"]},
                "file": {"type": "object", "properties": {"name": {"type": "string"}, "uri": {"type": "string"}, "size": {"type": "integer"}}},
                "locationCoords": {"type": "object", "properties": {"latitude": {"type": "number"}, "longitude": {"type": "number"}}},
                "notificationId": {"type": "string"}
            }
        },
        "models.LogEntry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "timestamp": {"type": "string"},
                "action": {"type": "string", "enum": ["added", "updated", "deleted"]},
                "taskId": {"type": "string"},
                "taskTitle": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Task manager agent API",
	Description:      "Local offline-first task API. Writes are saved locally and mirrored to the server when reachable.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
