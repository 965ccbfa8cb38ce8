// Package mcp contains the protocol data types and method constants shared
// across the gateway pipeline. It mirrors the wire representation while
// keeping the surface Go-friendly (exported structs with json tags, string
// constants for method names).
//
// The package is intentionally free of transport and pipeline logic: the
// ingress, the validator and the dispatcher all import these types but
// implement their own framing, admission control and session handling.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsCallMethod). Using the constants avoids typographical mistakes
// and ensures a single point of truth if the surface evolves.
package mcp
