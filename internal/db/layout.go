package db

import "strings"

// Layout maps a workspace onto backend names.
// Redis keeps one FT index per workspace over hashes at {prefix}{workspace}:doc:{id};
// Postgres addresses the workspace directly and uses bare document ids as keys.
type Layout struct {
	prefix string
	bare   bool
}

// RedisLayout returns the key layout used by the Redis backend.
func RedisLayout(prefix string) Layout {
	return Layout{prefix: prefix}
}

// TableLayout returns the layout used by table-backed stores.
func TableLayout() Layout {
	return Layout{bare: true}
}

// IndexName returns the searchable index for workspace.
func (l Layout) IndexName(workspace string) string {
	if l.bare {
		return workspace
	}
	return l.prefix + workspace + ":idx"
}

// DocKeyPrefix returns the prefix stripped from entry keys to get document ids.
func (l Layout) DocKeyPrefix(workspace string) string {
	if l.bare {
		return ""
	}
	return l.prefix + workspace + ":doc:"
}

// Workspace maps an index name back to its workspace. Names outside the layout report false.
func (l Layout) Workspace(index string) (string, bool) {
	if l.bare {
		return index, index != ""
	}
	rest, ok := strings.CutPrefix(index, l.prefix)
	if !ok {
		return "", false
	}
	ws, ok := strings.CutSuffix(rest, ":idx")
	if !ok || ws == "" {
		return "", false
	}
	return ws, true
}
