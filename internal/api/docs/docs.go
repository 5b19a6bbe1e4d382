// Package docs holds the swagger document of the status API.
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
        "/runs": {
            "get": {
                "description": "Every run recorded in the output database, newest first",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.RunRecord"}}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.RunRecord"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}/chunks": {
            "get": {
                "description": "Per-chunk telemetry in append order",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List chunks",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.ChunkRecord"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}/failures": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List row failures",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "default": 100, "description": "Maximum number of failures", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.FailureRecord"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/measurements": {
            "get": {
                "description": "With src and dest, one measurement. With src only, every measurement of that source row.",
                "produces": ["application/json"],
                "tags": ["measurements"],
                "summary": "Read measurements",
                "parameters": [
                    {"type": "integer", "description": "Source row index", "name": "src", "in": "query", "required": true},
                    {"type": "integer", "description": "Destination row index", "name": "dest", "in": "query"},
                    {"type": "integer", "default": 100, "description": "Maximum number of rows for a source scan", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handler.MeasurementResponse"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/progress": {
            "get": {
                "description": "Served while the run command holds the status address",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Live run progress",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/pipeline.RunMetrics"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "handler.MeasurementResponse": {
            "type": "object",
            "properties": {
                "row_src": {"type": "integer"},
                "row_dest": {"type": "integer"},
                "src2dest": {"type": "number"},
                "dest2src": {"type": "number"}
            }
        },
        "model.Chunk": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "start": {"type": "integer"},
                "stop": {"type": "integer"}
            }
        },
        "model.ChunkRecord": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "chunk": {"$ref": "#/definitions/model.Chunk"},
                "records": {"type": "integer"},
                "failures": {"type": "integer"},
                "duplicates": {"type": "integer"},
                "workers": {"type": "integer"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"}
            }
        },
        "model.PairKey": {
            "type": "object",
            "properties": {
                "row_src": {"type": "integer"},
                "row_dest": {"type": "integer"}
            }
        },
        "model.RowFailure": {
            "type": "object",
            "properties": {
                "key": {"$ref": "#/definitions/model.PairKey"},
                "code": {"type": "string"},
                "message": {"type": "string"},
                "geodesic_km": {"type": "number"}
            }
        },
        "model.FailureRecord": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "chunk_index": {"type": "integer"},
                "failure": {"$ref": "#/definitions/model.RowFailure"},
                "created_at": {"type": "string"}
            }
        },
        "model.QueryParams": {
            "type": "object",
            "properties": {
                "profile": {"type": "string"},
                "metric": {"type": "string"},
                "units": {"type": "string"},
                "optimized": {"type": "boolean"}
            }
        },
        "pipeline.RunMetrics": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "status": {"type": "string"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "duration": {"type": "integer"},
                "total_rows": {"type": "integer"},
                "total_chunks": {"type": "integer"},
                "chunks": {"type": "integer"},
                "rows_completed": {"type": "integer"},
                "records": {"type": "integer"},
                "failures": {"type": "integer"},
                "duplicates": {"type": "integer"},
                "failures_by_code": {"type": "object", "additionalProperties": {"type": "integer"}},
                "last_chunk": {"type": "integer"},
                "progress": {"type": "number"},
                "rows_per_second": {"type": "number"}
            }
        },
        "model.RunRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string"},
                "iteration_start": {"type": "integer"},
                "chunksize": {"type": "integer"},
                "total_rows": {"type": "integer"},
                "params": {"$ref": "#/definitions/model.QueryParams"},
                "started_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "ors-matrix status API",
	Description:      "Read-only view of distance matrix runs and their output.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
