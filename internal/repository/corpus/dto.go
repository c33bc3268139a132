package corpus

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain/document"
)

// FromEntry hydrates a document from a stored entry.
// Metadata comes from the __metadata JSON object when present; otherwise every
// non-reserved field is taken, sorted by name.
func FromEntry(entry db.SearchEntry, keyPrefix string) document.Document {
	id := strings.TrimPrefix(entry.Key, keyPrefix)

	var md document.Metadata
	if raw, ok := entry.Fields[db.FieldMetadata]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			md = nil
		}
	}
	if md == nil {
		md = flatMetadata(entry.Fields)
	}

	return document.Reconstruct(id, entry.Fields[db.FieldContent], md)
}

func flatMetadata(fields map[string]string) document.Metadata {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.HasPrefix(k, "__") {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	md := make(document.Metadata, 0, len(keys))
	for _, k := range keys {
		md = append(md, document.Field{Key: k, Value: fields[k]})
	}
	return md
}
