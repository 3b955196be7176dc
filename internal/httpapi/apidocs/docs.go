// Package apidocs holds the swagger document served by the swagger build.
// Regenerate with `swag init -g cmd/classifyd/docs.go -o internal/httpapi/apidocs`.
package apidocs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "classifyd maintainers"},
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/predict": {
            "post": {
                "summary": "Classify one image",
                "consumes": ["application/octet-stream", "image/png", "image/jpeg", "multipart/form-data"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "label", "in": "query", "description": "Expected label, echoed back"},
                    {"type": "file", "name": "image", "in": "formData", "description": "Image file (multipart)"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.PredictResponse"}},
                    "400": {"description": "Empty body", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "422": {"description": "Inference failed", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Pool exhausted or closed", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "504": {"description": "Acquire timeout", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/classifyimage": {
            "get": {
                "summary": "Run the warm-up memory probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ProbeResponse"}},
                    "404": {"description": "Test image or model missing", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "summary": "Pool status",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/healthz": {"get": {"summary": "Liveness", "responses": {"200": {"description": "ok"}}}},
        "/readyz": {"get": {"summary": "Readiness", "responses": {"200": {"description": "ready"}, "503": {"description": "closed"}}}}
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}
        },
        "types.PredictResponse": {
            "type": "object",
            "properties": {
                "label": {"type": "string"},
                "score": {"type": "number"},
                "index": {"type": "integer"},
                "scores": {"type": "array", "items": {"type": "number"}},
                "labels": {"type": "array", "items": {"type": "string"}},
                "handle": {"type": "integer"},
                "cold": {"type": "boolean"},
                "duration_ms": {"type": "integer"}
            }
        },
        "types.ProbeResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "run_id": {"type": "string"},
                "pool_size": {"type": "integer"},
                "passes": {"type": "integer"},
                "repeated_growth": {"type": "boolean"},
                "total_memory": {"type": "string"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "pool_id": {"type": "string"},
                "backend": {"type": "string"},
                "size": {"type": "integer"},
                "idle": {"type": "integer"},
                "busy": {"type": "integer"},
                "warmed": {"type": "integer"},
                "waiters": {"type": "integer"},
                "state": {"type": "string"}
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
	Title:            "classifyd API",
	Description:      "HTTP API for pooled image classification engines.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
