// Package auth holds the Swagger 2.0 document served under /swagger/.
// It follows the layout swag init emits, so it can be regenerated with
//
//	swag init -g internal/auth/http/router.go -o api/auth --ot go
package auth

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
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Service banner",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.BannerResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Acknowledgement only. Tokens stay valid until they expire; clients discard them.",
                "produces": ["application/json"],
                "tags": ["Tokens"],
                "summary": "Log out",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.MessageResponse"}},
                    "401": {"description": "invalid or missing access token", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/auth/otp/send": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Sends a one-time code by SMS to phone_number (E.164). Any valid access token may call this.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["OTP"],
                "summary": "Send a step-up code",
                "parameters": [
                    {"description": "phone number", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authsdk.OTPSendRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.OTPSendResponse"}},
                    "400": {"description": "invalid phone number", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "invalid or missing access token", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "502": {"description": "OTP provider unavailable", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/auth/otp/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Diagnostic lookup of the most recent verification for phone_number.",
                "produces": ["application/json"],
                "tags": ["OTP"],
                "summary": "Latest verification status",
                "parameters": [
                    {"type": "string", "description": "E.164 phone number", "name": "phone_number", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.OTPStatusResponse"}},
                    "400": {"description": "invalid phone number", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "404": {"description": "no verification known", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/auth/otp/verify": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Checks the code and, when approved, returns a new token pair with the full scope set and requires_2fa=false.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["OTP"],
                "summary": "Verify a step-up code",
                "parameters": [
                    {"description": "phone number and code", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authsdk.OTPVerifyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.TokenResponse"}},
                    "400": {"description": "invalid_code or invalid_request", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "invalid or missing access token", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "description": "Access tokens are only minted from a provider login. A valid refresh token is answered with\n401 reauthentication_required, an invalid one with 401 invalid_token.",
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Tokens"],
                "summary": "Refresh (disabled)",
                "parameters": [
                    {"description": "refresh token (also accepted as form field or query parameter)", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/authsdk.RefreshRequest"}}
                ],
                "responses": {
                    "400": {"description": "no refresh token", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "reauthentication_required or invalid_token", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/auth/verify": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Service-to-service check. Always 200 once a bearer is presented; valid=false carries no identity.",
                "produces": ["application/json"],
                "tags": ["Tokens"],
                "summary": "Verify an access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.TokenValidation"}},
                    "401": {"description": "no bearer token", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/auth/{provider}": {
            "get": {
                "description": "Records a single-use state and returns the provider's authorization URL.\nredirect_url, when given, must belong to an allowed origin; the callback then redirects there with the token.",
                "produces": ["application/json"],
                "tags": ["Login"],
                "summary": "Start a provider login",
                "parameters": [
                    {"type": "string", "description": "google, microsoft or apple", "name": "provider", "in": "path", "required": true},
                    {"type": "string", "description": "where to send the token after login", "name": "redirect_url", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.LoginResponse"}},
                    "400": {"description": "redirect_url not allowed", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "404": {"description": "unknown provider", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/auth/{provider}/callback": {
            "get": {
                "description": "Consumes the state, resolves the identity and mints a partial-scope token pair with requires_2fa=true.\nWith a stored redirect_url the response is a 302 to it carrying token and requires_2fa query parameters.",
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Login"],
                "summary": "Complete a provider login",
                "parameters": [
                    {"type": "string", "description": "google, microsoft or apple", "name": "provider", "in": "path", "required": true},
                    {"type": "string", "description": "authorization code", "name": "code", "in": "query"},
                    {"type": "string", "description": "state from login start", "name": "state", "in": "query", "required": true},
                    {"type": "string", "description": "provider error", "name": "error", "in": "query"},
                    {"type": "string", "description": "Apple inline identity token", "name": "id_token", "in": "formData"},
                    {"type": "string", "description": "Apple user JSON, first sign-in only", "name": "user", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.TokenResponse"}},
                    "302": {"description": "redirect to the stored redirect_url"},
                    "400": {"description": "invalid_state, access_denied, provider_exchange_failed or identity_unavailable", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "501": {"description": "provider cannot exchange codes", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "502": {"description": "provider unavailable", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        },
        "/livez": {
            "get": {
                "description": "Always 200 while the process is serving.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "status, uptime, version", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "description": "Pings the authorization-state store.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "status, uptime, version, checks", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}},
                    "503": {"description": "state store unreachable", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "authsdk.BannerResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "version": {"type": "string"}
            }
        },
        "authsdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_description": {"type": "string"}
            }
        },
        "authsdk.HealthChecks": {
            "type": "object",
            "properties": {
                "signer": {"type": "string"},
                "state_store": {"type": "string"}
            }
        },
        "authsdk.HealthResponse": {
            "type": "object",
            "properties": {
                "checks": {"$ref": "#/definitions/authsdk.HealthChecks"},
                "service": {"type": "string"},
                "status": {"type": "string"},
                "uptime": {"type": "string"},
                "version": {"type": "string"}
            }
        },
        "authsdk.LoginResponse": {
            "type": "object",
            "properties": {
                "authorization_url": {"type": "string"},
                "state": {"type": "string"}
            }
        },
        "authsdk.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "authsdk.OTPSendRequest": {
            "type": "object",
            "properties": {
                "phone_number": {"type": "string"}
            }
        },
        "authsdk.OTPSendResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "authsdk.OTPStatusResponse": {
            "type": "object",
            "properties": {
                "channel": {"type": "string"},
                "date_created": {"type": "string"},
                "sid": {"type": "string"},
                "status": {"type": "string"},
                "to": {"type": "string"}
            }
        },
        "authsdk.OTPVerifyRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "phone_number": {"type": "string"}
            }
        },
        "authsdk.RefreshRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "authsdk.TokenResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "expires_in": {"description": "ExpiresIn is the access token lifetime in seconds.", "type": "integer"},
                "refresh_token": {"type": "string"},
                "requires_2fa": {"description": "Requires2FA is true until the holder completes an OTP step-up.", "type": "boolean"},
                "token_type": {"description": "TokenType is always \"bearer\".", "type": "string"}
            }
        },
        "authsdk.TokenValidation": {
            "type": "object",
            "properties": {
                "expires_at": {"type": "string"},
                "requires_2fa": {"type": "boolean"},
                "scopes": {"type": "array", "items": {"type": "string"}},
                "user_info": {"$ref": "#/definitions/authsdk.UserInfo"},
                "valid": {"type": "boolean"}
            }
        },
        "authsdk.UserInfo": {
            "type": "object",
            "properties": {
                "domain": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"},
                "picture": {"type": "string"},
                "provider": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Access token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "comma-auth",
	Description:      "Central authentication gateway. Users sign in with Google, Microsoft or Apple and receive a\npartial-scope bearer token, then complete an SMS one-time code to upgrade it to full scope.\n\nTokens are HMAC-signed JWTs. Downstream services check them with POST /auth/verify.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
