// ABOUTME: Package documentation for the auth package
// ABOUTME: Explains token verification and the HTTP middleware

// Package auth provides JWT-based authentication for the console API.
//
// # Tokens
//
// Tokens are HS256-signed JWTs carrying a "sub" claim that identifies the
// console user. JWTVerifier both mints tokens (Generate) and validates them
// (Verify) against a shared secret.
//
// # Middleware
//
// Middleware wraps an http.Handler and rejects requests without a valid
// bearer token. Handlers downstream can recover the identity with
// FromContext.
package auth
