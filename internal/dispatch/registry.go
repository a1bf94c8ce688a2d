// Package dispatch implements the tool dispatcher (spec §4.5): it
// translates a named tool call into a tickstore/eventlog invocation,
// and resolves ocean.clog.call peer addresses through a Registry,
// minting each peer a fresh Invoker (tickstore.Factory) so budgets and
// RBW ledgers never cross adapter boundaries (spec §9).
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/erhathaway/ocean/internal/oceantypes"
)

// ToolInvoker is the surface an adapter's advance or endpoint handler
// calls through — the Go-native shape of the spec's generic
// {name, input} tool-call contract, since adapters address tools by
// name and exchange opaque JSON (spec §6 "Tool invoker surface").
type ToolInvoker interface {
	Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error)
}

// EndpointHandler is one clog endpoint: given the tools bound to ITS
// OWN clogId and the shared tick context, produce a JSON result.
type EndpointHandler func(ctx context.Context, tools ToolInvoker, tick oceantypes.TickContext, payload json.RawMessage) (json.RawMessage, error)

// Registry resolves clog ids and endpoint methods for ocean.clog.call.
// The root ocean package implements this over its registered Clogs;
// dispatch never imports the root package (it would cycle), so it only
// depends on this narrow interface.
type Registry interface {
	Endpoint(clogID, method string) (EndpointHandler, bool)
	HasClog(clogID string) bool
}
