// Package server hosts the Polaris API from a single HTTP server.
//
// Every request passes the same middleware chain of request IDs, logging,
// metrics, security headers, CORS and rate limiting. Routes that need a
// logged-in user declare it in the route table and are wrapped by the
// session gate before they reach the mux.
package server
