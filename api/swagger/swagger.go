package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Study Hall Attendance API",
        "description": "Seat-based attendance for self-study halls: daily generation, kiosk PIN check-in/out and absence sweeps.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Checks", "description": "Kiosk PIN check-in and check-out"},
        {"name": "Credentials", "description": "Scope tokens and student PINs"},
        {"name": "Timetables", "description": "Student weekly schedules"},
        {"name": "Attendance", "description": "Operator views and corrections"},
        {"name": "Jobs", "description": "On-demand generation and sweeps"}
    ],
    "paths": {
        "/checks/pin": {
            "post": {
                "tags": ["Checks"],
                "summary": "Check a student in or out with a PIN",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "X-Scope-Token", "in": "header", "type": "string", "required": false},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PinCheckRequest"}}
                ],
                "responses": {
                    "200": {"description": "Transition applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials or scope token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No applicable session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/scope-tokens": {
            "post": {
                "tags": ["Credentials"],
                "summary": "Issue a kiosk scope token for a seat layout",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"layoutId": {"type": "string"}}}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/students/{studentId}/pin": {
            "post": {
                "tags": ["Credentials"],
                "summary": "Issue or rotate a student's PIN",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "studentId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": false, "schema": {"type": "object", "properties": {"pin": {"type": "string"}}}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/students/{studentId}/pin/unlock": {
            "post": {
                "tags": ["Credentials"],
                "summary": "Clear a student's PIN lockout",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "studentId", "in": "path", "type": "string", "required": true}],
                "responses": {"204": {"description": "Unlocked"}, "404": {"description": "No credential"}}
            }
        },
        "/admin/students/{studentId}/timetable": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get a student's weekly timetable",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "studentId", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}, "404": {"description": "No timetable"}}
            },
            "put": {
                "tags": ["Timetables"],
                "summary": "Replace a student's weekly timetable",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "studentId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"dailySchedules": {"type": "object"}}}}
                ],
                "responses": {"200": {"description": "Stored", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance records for a day",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "date", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "studentId", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/attendance/unclosed": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List checked-in records past their grace deadline",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "date", "in": "query", "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/attendance/{recordId}/excuse": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark a record as an excused absence",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "recordId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"reason": {"type": "string"}}}}
                ],
                "responses": {"200": {"description": "Updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/attendance/{recordId}/override": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Force a record into checked_in or checked_out",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "recordId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"status": {"type": "string", "enum": ["checked_in", "checked_out"]}, "at": {"type": "string", "format": "date-time"}}}}
                ],
                "responses": {"200": {"description": "Updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/jobs/{job}/run": {
            "post": {
                "tags": ["Jobs"],
                "summary": "Run generation, start sweep or finalize now",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "job", "in": "path", "type": "string", "required": true, "enum": ["generation", "start_sweep", "finalize"]},
                    {"name": "payload", "in": "body", "required": false, "schema": {"type": "object", "properties": {"date": {"type": "string"}, "at": {"type": "string", "format": "date-time"}}}}
                ],
                "responses": {
                    "200": {"description": "Summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "PinCheckRequest": {
            "type": "object",
            "properties": {
                "scopeToken": {"type": "string"},
                "pin": {"type": "string"},
                "seatNumber": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
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
