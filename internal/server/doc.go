// Package server exposes the resolver over HTTP.
//
// Routes:
//
//	GET /api/download?bilibili=<link>&qn=<code>   direct media URL as text/plain
//	GET /api/getreal?bilibili=<link>              canonical link as text/plain
//	GET /healthz                                  liveness
//
// Every response allows any origin; OPTIONS is answered before routing.
// Errors are rendered as "<CODE>: <message>" with 400 for caller mistakes,
// 502 for upstream failures and 504 for upstream timeouts.
package server
