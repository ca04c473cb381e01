// Package gotrue implements the hosted credential backend: a GoTrue style
// REST client for sign-in and session management, a service-role admin client
// for the privileged serverless functions, and a JWKS token validator.
package gotrue
