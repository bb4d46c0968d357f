package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Clinic Announcements API",
        "description": "Role-targeted announcements with per-recipient read receipts",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"Bearer": []}],
    "tags": [
        {"name": "Announcements", "description": "Publishing, listing and read tracking"},
        {"name": "Statistics", "description": "Engagement reporting for publishers"}
    ],
    "paths": {
        "/announcements": {
            "get": {
                "tags": ["Announcements"],
                "summary": "List announcements visible to the caller's role",
                "parameters": [
                    {"name": "priority", "in": "query", "type": "string", "enum": ["low", "medium", "high", "critical"]},
                    {"name": "type", "in": "query", "type": "string", "enum": ["general", "urgent", "policy", "training", "maintenance", "system"]},
                    {"name": "unread_only", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AnnouncementList"}},
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Announcements"],
                "summary": "Publish an announcement",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAnnouncementRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not a publisher for the requested roles", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/announcements/unread-count": {
            "get": {
                "tags": ["Announcements"],
                "summary": "Count unread announcements for the caller",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/announcements/mine": {
            "get": {
                "tags": ["Announcements"],
                "summary": "List announcements authored by the caller, inactive included",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AnnouncementList"}},
                    "400": {"description": "Invalid paging", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Publisher role required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/announcements/stats": {
            "get": {
                "tags": ["Statistics"],
                "summary": "Engagement summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Publisher role required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/announcements/stats/export": {
            "get": {
                "tags": ["Statistics"],
                "summary": "Download the engagement summary",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {"200": {"description": "File", "schema": {"type": "file"}}}
            }
        },
        "/announcements/{id}": {
            "parameters": [{"name": "id", "in": "path", "required": true, "type": "string", "format": "uuid"}],
            "get": {
                "tags": ["Announcements"],
                "summary": "Get an announcement",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found or not visible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Announcements"],
                "summary": "Patch mutable fields",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateAnnouncementRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Immutable field or not a publisher", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Announcements"],
                "summary": "Deactivate an announcement (idempotent)",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/announcements/{id}/read": {
            "post": {
                "tags": ["Announcements"],
                "summary": "Record that the caller read the announcement",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string", "format": "uuid"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found or not visible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Attachment": {
            "type": "object",
            "required": ["name", "location"],
            "properties": {
                "name": {"type": "string"},
                "original_name": {"type": "string"},
                "content_type": {"type": "string"},
                "size": {"type": "integer"},
                "location": {"type": "string"}
            }
        },
        "CreateAnnouncementRequest": {
            "type": "object",
            "required": ["title", "content"],
            "properties": {
                "title": {"type": "string", "maxLength": 200},
                "content": {"type": "string", "maxLength": 2000},
                "type": {"type": "string", "default": "general"},
                "priority": {"type": "string", "default": "medium"},
                "target_roles": {"type": "array", "items": {"type": "string"}},
                "publish_date": {"type": "string", "format": "date-time"},
                "expiry_date": {"type": "string", "format": "date-time"},
                "attachments": {"type": "array", "items": {"$ref": "#/definitions/Attachment"}}
            }
        },
        "UpdateAnnouncementRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "content": {"type": "string"},
                "type": {"type": "string"},
                "priority": {"type": "string"},
                "target_roles": {"type": "array", "items": {"type": "string"}},
                "publish_date": {"type": "string", "format": "date-time"},
                "expiry_date": {"type": "string", "format": "date-time"},
                "clear_expiry": {"type": "boolean"},
                "attachments": {"type": "array", "items": {"$ref": "#/definitions/Attachment"}}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "field": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        },
        "AnnouncementList": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"type": "object"}},
                "pagination": {"$ref": "#/definitions/Pagination"}
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
