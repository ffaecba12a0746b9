package control

import (
	"fmt"

	"github.com/plugctl/plugd/internal/registry"
)

// PluginStatus describes one registry entry in a control reply.
type PluginStatus struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// listReply serializes a registry snapshot in registration order.
func listReply(snap []*registry.Record) map[string]any {
	plugins := make([]PluginStatus, 0, len(snap))
	for _, rec := range snap {
		plugins = append(plugins, PluginStatus{
			Name:   rec.Path(),
			Active: rec.State() == registry.StateActive,
		})
	}

	return map[string]any{"plugins": plugins}
}

// stopReply builds the stop success payload. With deprecated APIs enabled
// the message is duplicated under the legacy empty-string key.
func stopReply(name string, deprecatedAPIs bool) map[string]any {
	msg := fmt.Sprintf("Successfully stopped %s.", name)
	reply := map[string]any{"result": msg}
	if deprecatedAPIs {
		reply[""] = msg
	}

	return reply
}
