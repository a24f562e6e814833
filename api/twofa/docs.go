// Package twofa registers the OpenAPI description of the twofa HTTP API with
// swag so http-swagger can serve it under /swagger/. Keep it in step with the
// annotations in internal/twofa/http.
package twofa

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/twofa"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Service banner",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.WelcomeResponse"}}
                }
            }
        },
        "/api/registration": {
            "post": {
                "description": "Creates an unverified user with a fresh shared secret. The secret is returned only here.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Enrollment"],
                "summary": "Register a new user",
                "parameters": [
                    {
                        "description": "Optional account label",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/authsdk.RegistrationRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "User ID, secret, provisioning URL and QR code", "schema": {"$ref": "#/definitions/authsdk.RegistrationResponse"}},
                    "400": {"description": "Malformed body or invalid label", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "429": {"description": "Too many registrations from this client", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/key/verification": {
            "post": {
                "description": "Checks the first code from the authenticator app and marks the user verified on a match. A wrong code is not an error: the response carries verified=false.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Enrollment"],
                "summary": "Confirm enrollment",
                "parameters": [
                    {
                        "description": "User ID and code",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/authsdk.KeyRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Verification result", "schema": {"$ref": "#/definitions/authsdk.VerificationResponse"}},
                    "400": {"description": "Malformed body", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "404": {"description": "Unknown user", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "409": {"description": "User already verified", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/key/validation": {
            "post": {
                "description": "Checks a code for a registered user. Never changes the user's verification status.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Enrollment"],
                "summary": "Validate a code",
                "parameters": [
                    {
                        "description": "User ID and code",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/authsdk.KeyRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Validation result", "schema": {"$ref": "#/definitions/authsdk.ValidationResponse"}},
                    "400": {"description": "Malformed body", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "404": {"description": "Unknown user", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/users/{id}": {
            "get": {
                "description": "Returns whether the user has completed enrollment. Never returns secret material.",
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Get user status",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "User status", "schema": {"$ref": "#/definitions/authsdk.UserStatusResponse"}},
                    "404": {"description": "Unknown user", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/livez": {
            "get": {
                "description": "Liveness probe endpoint returning basic service health status, uptime, and version information",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health Check Endpoint",
                "responses": {
                    "200": {"description": "status, uptime, version", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "description": "Readiness probe endpoint returning service health status and the record store check",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness Check Endpoint",
                "responses": {
                    "200": {"description": "status, uptime, version, checks", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}},
                    "503": {"description": "service not ready", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "authsdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_description": {"type": "string"}
            }
        },
        "authsdk.RegistrationRequest": {
            "type": "object",
            "properties": {
                "label": {"type": "string"}
            }
        },
        "authsdk.RegistrationResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "user_key": {"type": "string"},
                "otpauth_url": {"type": "string"},
                "qr_code": {"type": "string"},
                "response": {"type": "string"}
            }
        },
        "authsdk.KeyRequest": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "user_token": {"type": "string"}
            }
        },
        "authsdk.VerificationResponse": {
            "type": "object",
            "properties": {
                "verified": {"type": "boolean"},
                "response": {"type": "string"}
            }
        },
        "authsdk.ValidationResponse": {
            "type": "object",
            "properties": {
                "validated": {"type": "boolean"},
                "response": {"type": "string"}
            }
        },
        "authsdk.UserStatusResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "verified": {"type": "boolean"},
                "created_at": {"type": "string", "format": "date-time"},
                "verified_at": {"type": "string", "format": "date-time"}
            }
        },
        "authsdk.WelcomeResponse": {
            "type": "object",
            "properties": {
                "response": {"type": "string"}
            }
        },
        "authsdk.HealthChecks": {
            "type": "object",
            "properties": {
                "store": {"type": "string"}
            }
        },
        "authsdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "uptime": {"type": "string"},
                "version": {"type": "string"},
                "checks": {"$ref": "#/definitions/authsdk.HealthChecks"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "twofa TOTP Service API",
	Description:      "Issues and verifies TOTP second factors.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
