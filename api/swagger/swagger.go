package swagger

import "github.com/swaggo/swag"

// Health, readiness and metrics live outside basePath and are not documented here.
const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Promotion API",
        "description": "Stages, commits and locks the promotion of students into the next school year.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Promotions",
            "description": "Promotion staging, commit and preview"
        },
        {
            "name": "SchoolYears",
            "description": "School year administration"
        }
    ],
    "paths": {
        "/promotions/{sourceYearId}/{targetYearId}/candidates": {
            "get": {
                "tags": [
                    "Promotions"
                ],
                "summary": "List students eligible for promotion",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "gradeLevel",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "section",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/{sourceYearId}/{targetYearId}/staged": {
            "get": {
                "tags": [
                    "Promotions"
                ],
                "summary": "List staged placements",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/{sourceYearId}/{targetYearId}/classes": {
            "get": {
                "tags": [
                    "Promotions"
                ],
                "summary": "List target classes with load",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/{sourceYearId}/{targetYearId}/stats": {
            "get": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Promotion progress",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/{sourceYearId}/{targetYearId}/assignments": {
            "post": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Stage students into a target class",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BulkAssignRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid payload",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "423": {
                        "description": "Target year locked",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/{sourceYearId}/{targetYearId}/assignments/{studentId}": {
            "delete": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Remove a staged placement",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "studentId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "classId",
                        "in": "query",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/{sourceYearId}/{targetYearId}/undo": {
            "post": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Revert the latest staging change",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/{sourceYearId}/{targetYearId}/commit": {
            "post": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Persist staged placements as enrollments",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "423": {
                        "description": "Target year locked",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/{sourceYearId}/{targetYearId}/staging": {
            "delete": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Abandon the staging workspace",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/promotions/{sourceYearId}/{targetYearId}/preview": {
            "post": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Write a CSV preview",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "sourceYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "targetYearId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/previews/{token}": {
            "get": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Download a preview file",
                "produces": [
                    "text/csv"
                ],
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "CSV file",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "403": {
                        "description": "Invalid or expired link",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/school-years/{id}/lock": {
            "post": {
                "tags": [
                    "SchoolYears"
                ],
                "summary": "Lock a school year",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "BulkAssignRequest": {
            "type": "object",
            "required": [
                "student_ids",
                "class_id"
            ],
            "properties": {
                "student_ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "class_id": {
                    "type": "string"
                },
                "keep_existing": {
                    "type": "boolean"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
