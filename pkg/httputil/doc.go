// Package httputil provides JSON request/response helpers and the HTTP
// middleware shared by the API server: structured request logging, panic
// recovery, request IDs and per-route metrics.
package httputil
