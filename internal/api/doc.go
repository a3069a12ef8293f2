// Package api hosts the HTTP handlers of the media gateway.
//
// Handler answers version, login, browse, flatten and serve requests. It
// decodes virtual paths from the raw request URL, delegates every library
// decision to the injected Collection and Thumbnailer, and converts the
// classified errors they return into HTTP statuses through a single table.
//
// Session enforcement happens upstream: internal/server wraps the protected
// routes with a gate that only checks for the session cookie. Handlers in this
// package assume the gate has already run and never re-check the cookie.
package api
