// Package kit holds the transport-agnostic glue shared by the HTTP and MCP
// surfaces: the Endpoint abstraction, context accessors, and tool
// registration helpers.
package kit

import "context"

// Endpoint is a transport-agnostic request handler. HTTP handlers and MCP
// tools both decode their wire format into a typed request and delegate to
// the same Endpoint, so business logic is written once.
type Endpoint func(ctx context.Context, req any) (any, error)
