// Package swagger registers the OpenAPI document served under /swagger/.
// Keep it in step with the handler annotations in pkg/api/handlers.
package swagger

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
        "/api/v1/actors": {
            "get": {"tags": ["actors"], "summary": "List actors", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/actors/{name}": {
            "get": {"tags": ["actors"], "summary": "Get an actor", "parameters": [{"$ref": "#/parameters/name"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/actors/{name}/plan": {
            "get": {"tags": ["plans"], "summary": "Get a plan", "parameters": [{"$ref": "#/parameters/name"}, {"type": "string", "description": "Plan date (YYYY-MM-DD)", "name": "date", "in": "query"}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/actors/{name}/plans": {
            "get": {"tags": ["plans"], "summary": "List stored plan dates", "parameters": [{"$ref": "#/parameters/name"}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/actors/{name}/plan/revise": {
            "post": {"tags": ["plans"], "summary": "Revise a plan", "parameters": [{"$ref": "#/parameters/name"}, {"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/api/v1/actors/{name}/plan/expand": {
            "post": {"tags": ["plans"], "summary": "Expand a task or an activity of today's plan", "parameters": [{"$ref": "#/parameters/name"}, {"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/api/v1/actors/{name}/actions": {
            "post": {"tags": ["actions"], "summary": "Submit an action", "parameters": [{"$ref": "#/parameters/name"}, {"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "Settled action"}, "202": {"description": "Accepted action"}, "400": {"description": "Bad Request"}}}
        },
        "/api/v1/actors/{name}/actions/stats": {
            "get": {"tags": ["actions"], "summary": "Scheduler counters", "parameters": [{"$ref": "#/parameters/name"}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/actors/{name}/perceptions": {
            "post": {"tags": ["actors"], "summary": "Queue an observation", "parameters": [{"$ref": "#/parameters/name"}, {"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}], "responses": {"202": {"description": "Accepted"}, "503": {"description": "Service Unavailable"}}}
        },
        "/api/v1/actors/{name}/memory/short-term": {
            "get": {"tags": ["memory"], "summary": "Read the short-term log", "parameters": [{"$ref": "#/parameters/name"}, {"type": "string", "name": "kind", "in": "query"}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["memory"], "summary": "Append to the short-term log", "parameters": [{"$ref": "#/parameters/name"}, {"name": "entry", "in": "body", "required": true, "schema": {"type": "object"}}], "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}}
        },
        "/api/v1/actors/{name}/memory/long-term": {
            "get": {"tags": ["memory"], "summary": "Read the long-term store", "parameters": [{"$ref": "#/parameters/name"}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/actors/{name}/memory/long-term/search": {
            "get": {"tags": ["memory"], "summary": "Search the long-term store", "parameters": [{"$ref": "#/parameters/name"}, {"type": "string", "name": "q", "in": "query", "required": true}, {"type": "integer", "name": "limit", "in": "query"}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/api/v1/actors/{name}/memory/day-end": {
            "post": {"tags": ["memory"], "summary": "Run the day-end memory pipeline", "parameters": [{"$ref": "#/parameters/name"}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/actors/{name}/memory/compact": {
            "post": {"tags": ["memory"], "summary": "Compact the short-term log", "parameters": [{"$ref": "#/parameters/name"}, {"type": "integer", "name": "keep", "in": "query"}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/api/v1/actors/{name}/memory/status": {
            "get": {"tags": ["memory"], "summary": "Memory counters and the last day-end run", "parameters": [{"$ref": "#/parameters/name"}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/actors/{name}/memory/backups": {
            "get": {"tags": ["memory"], "summary": "List memory snapshots", "parameters": [{"$ref": "#/parameters/name"}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["memory"], "summary": "Snapshot both memory documents", "parameters": [{"$ref": "#/parameters/name"}], "responses": {"201": {"description": "Created"}}}
        },
        "/api/v1/actors/{name}/memory/backups/{id}/restore": {
            "post": {"tags": ["memory"], "summary": "Restore a memory snapshot", "parameters": [{"$ref": "#/parameters/name"}, {"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/health": {"get": {"tags": ["health"], "summary": "Liveness probe", "responses": {"200": {"description": "OK"}}}},
        "/ready": {"get": {"tags": ["health"], "summary": "Readiness probe", "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}},
        "/status": {"get": {"tags": ["health"], "summary": "Process and actor status", "responses": {"200": {"description": "OK"}}}}
    },
    "parameters": {
        "name": {"type": "string", "description": "Actor name", "name": "name", "in": "path", "required": true}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "dayloop API",
	Description:      "Plans, actions and memory of simulated characters.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
