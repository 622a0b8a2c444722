package memstore

import (
	"github.com/goccy/go-json"

	"github.com/jacentio/persist/store"
)

// queryEnv is the environment custom queries are evaluated against:
//
//	oid, version     primary key
//	entityVersion    optimistic lock version
//	parent           parent OID
//	work             work version flag
//	validFrom/Until  validity window (nil when open)
//	columns          computed columns
//	object           the descriptor decoded as JSON (nil for other formats)
//	params           query parameters
func queryEnv(e *store.Entity, params store.Params) map[string]any {
	env := map[string]any{
		"oid":           e.Key.OID,
		"version":       e.Key.Version,
		"entityVersion": e.Version,
		"parent":        e.ParentOID,
		"work":          e.Work,
		"validFrom":     e.ValidFrom,
		"validUntil":    e.ValidUntil,
		"columns":       map[string]string(e.Columns),
		"params":        map[string]any(params),
	}
	var object map[string]any
	if err := json.Unmarshal(e.Descriptor, &object); err == nil {
		env["object"] = object
	}
	return env
}
