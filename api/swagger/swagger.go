package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Attend API",
        "description": "QR attendance tracker for schools",
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
        {"name": "Auth", "description": "Registration and login"},
        {"name": "Users", "description": "User listing and profiles"},
        {"name": "Attendance", "description": "QR sessions and scan records"},
        {"name": "Degrees", "description": "Exams and student degrees"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a new user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/AuthResponse"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/APIError"}},
                    "409": {"description": "Username or email taken", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Log in with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AuthResponse"}},
                    "400": {"description": "Wrong credentials", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Page"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "tags": ["Users"],
                "summary": "Fetch one user",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/User"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            },
            "put": {
                "tags": ["Users"],
                "summary": "Update own profile",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateProfileRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/User"}}
                }
            }
        },
        "/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Create a QR session for a class",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Session"}},
                    "400": {"description": "Unknown class name", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/attendance/{id}": {
            "delete": {
                "tags": ["Attendance"],
                "summary": "Delete a session and its scan records",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/attendance/all": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List sessions, newest first",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Page"}}
                }
            }
        },
        "/attendance/today": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Today's scans grouped by session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "className", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Page"}}
                }
            }
        },
        "/attendance/class/{className}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Attendance records for a class",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "className", "in": "path", "required": true, "type": "string"},
                    {"name": "month", "in": "query", "type": "string", "description": "YYYY-MM"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Page"}},
                    "400": {"description": "Bad month format", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/attendance/class/{className}/export": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Export a class's attendance as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "className", "in": "path", "required": true, "type": "string"},
                    {"name": "month", "in": "query", "type": "string", "description": "YYYY-MM"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/attendance/student/{studentId}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "One student's attendance (admin view)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "month", "in": "query", "type": "string", "description": "YYYY-MM"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Page"}}
                }
            }
        },
        "/attendance/scan": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record a scan of a session QR code",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "Attended", "schema": {"$ref": "#/definitions/ScanResult"}},
                    "400": {"description": "Already attended today", "schema": {"$ref": "#/definitions/APIError"}},
                    "403": {"description": "Wrong class", "schema": {"$ref": "#/definitions/APIError"}},
                    "404": {"description": "Invalid QR code", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/attendance/my": {
            "get": {
                "tags": ["Attendance"],
                "summary": "The calling student's own attendance",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "month", "in": "query", "type": "string", "description": "YYYY-MM"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Page"}}
                }
            }
        },
        "/degrees/exam/create": {
            "post": {
                "tags": ["Degrees"],
                "summary": "Define an exam for a class",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateExamRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Exam"}},
                    "409": {"description": "Exam already exists", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/degrees/exam/{examId}": {
            "get": {
                "tags": ["Degrees"],
                "summary": "List an exam's degrees, highest first",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "examId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/degrees/add": {
            "post": {
                "tags": ["Degrees"],
                "summary": "Record a student's degree for an exam",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddDegreeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Degree"}},
                    "409": {"description": "Degree already recorded", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/degrees/student/{userId}": {
            "get": {
                "tags": ["Degrees"],
                "summary": "List one student's degrees",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "userId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/degrees/my": {
            "get": {
                "tags": ["Degrees"],
                "summary": "The calling student's own degrees",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/degrees/{id}": {
            "delete": {
                "tags": ["Degrees"],
                "summary": "Delete a degree",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Deleted"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["username", "email", "password", "firstName", "lastName"],
            "properties": {
                "username": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "firstName": {"type": "string"},
                "lastName": {"type": "string"},
                "className": {"type": "string"},
                "role": {"type": "string", "enum": ["ADMIN", "STUDENT"]}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "AuthResponse": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "user": {"$ref": "#/definitions/User"}
            }
        },
        "User": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "username": {"type": "string"},
                "email": {"type": "string"},
                "firstName": {"type": "string"},
                "lastName": {"type": "string"},
                "className": {"type": "string"},
                "role": {"type": "string"},
                "profilePic": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "UpdateProfileRequest": {
            "type": "object",
            "properties": {
                "firstName": {"type": "string"},
                "lastName": {"type": "string"},
                "profilePic": {"type": "string"}
            }
        },
        "CreateSessionRequest": {
            "type": "object",
            "required": ["className"],
            "properties": {
                "className": {"type": "string"}
            }
        },
        "Session": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "className": {"type": "string"},
                "qrCode": {"type": "string"},
                "createdBy": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "ScanRequest": {
            "type": "object",
            "required": ["qrCode"],
            "properties": {
                "qrCode": {"type": "string"}
            }
        },
        "ScanResult": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "className": {"type": "string"},
                "attendedAt": {"type": "string", "format": "date-time"}
            }
        },
        "CreateExamRequest": {
            "type": "object",
            "required": ["name", "className", "fullDegree"],
            "properties": {
                "name": {"type": "string"},
                "className": {"type": "string"},
                "fullDegree": {"type": "number"}
            }
        },
        "Exam": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "className": {"type": "string"},
                "fullDegree": {"type": "number"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "AddDegreeRequest": {
            "type": "object",
            "required": ["userId", "examId", "studentDegree"],
            "properties": {
                "userId": {"type": "string"},
                "examId": {"type": "string"},
                "studentDegree": {"type": "number"}
            }
        },
        "Degree": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "userId": {"type": "string"},
                "examId": {"type": "string"},
                "studentDegree": {"type": "number"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "Page": {
            "type": "object",
            "properties": {
                "content": {"type": "array", "items": {"type": "object"}},
                "page": {"type": "integer"},
                "size": {"type": "integer"},
                "totalElements": {"type": "integer"},
                "totalPages": {"type": "integer"},
                "first": {"type": "boolean"},
                "last": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "status": {"type": "integer"}
                    }
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
