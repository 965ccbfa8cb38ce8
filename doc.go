// Package gateway mediates every inbound tool, resource and prompt
// invocation on a protocol server. One invocation flows through the pipeline
// as: validate request, fold through request hooks (where the sliding-window
// rate limiter may reject it), invoke the handler under a per-method timeout
// race, fold the result through response hooks, validate the response. A
// failure at any stage folds through the error hooks before it surfaces as a
// JSON-RPC error object; raw internal errors never cross the wire boundary.
//
// The gateway owns no business logic. Tool handlers, resource providers and
// prompt providers are external collaborators registered against it, and the
// transport feeding it bytes is external glue (see the streamhttp package for
// an HTTP ingress, stdio for a single-connection one).
package gateway
