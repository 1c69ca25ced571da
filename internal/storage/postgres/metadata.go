package postgres

import (
	"fmt"
	"time"

	"github.com/gregpriday/memory-mcp/internal/validate"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// parseNormalized parses the RFC 3339 output of the timestamp validator.
func parseNormalized(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// mergeMetadata layers three metadata sources with increasing precedence:
// batch defaults, then the existing row's metadata, then the incoming item.
func mergeMetadata(defaults, existing, incoming map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(existing)+len(incoming))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// applyMetadata denormalizes well-known metadata keys into the typed fields
// that back columns. The metadata must already have passed validation, so
// type assertions here are best-effort rather than strict.
func applyMetadata(m *types.Memory, md map[string]interface{}) {
	if v, ok := stringKey(md, "memoryType", "memory_type"); ok {
		m.MemoryType = types.MemoryType(v)
	}
	if v, ok := stringKey(md, "topic", ""); ok {
		m.Topic = v
	}
	if v, ok := stringKey(md, "importance", ""); ok {
		m.Importance = types.Importance(v)
	}
	if v, ok := stringKey(md, "source", ""); ok {
		m.Source = types.Source(v)
	}
	if v, ok := stringKey(md, "sourcePath", "source_path"); ok {
		m.SourcePath = v
	}
	if v, ok := stringKey(md, "channel", ""); ok {
		m.Channel = v
	}
	if v, ok := stringKey(md, "kind", ""); ok {
		m.Kind = types.Kind(v)
	}
	if v, ok := stringKey(md, "stability", ""); ok {
		m.Dynamics.Stability = types.Stability(v)
	}

	if raw, ok := md["tags"]; ok {
		if tags, err := validate.StringList(raw); err == nil {
			m.Tags = tags
		}
	}
	if raw, ok := md["derivedFromIds"]; ok {
		if ids, err := validate.StringList(raw); err == nil {
			m.DerivedFromIDs = ids
		}
	}

	if raw, ok := md["emotion"].(map[string]interface{}); ok {
		if label, ok := raw["label"].(string); ok {
			m.Emotion.Label = label
		}
		if v, ok := asNumber(raw["intensity"]); ok {
			m.Emotion.Intensity = &v
		}
	}

	if raw, ok := md["dynamics"].(map[string]interface{}); ok {
		applyDynamics(&m.Dynamics, raw)
	}

	// An explicit event timestamp beats the implicit "now".
	if v, ok := stringKey(md, "timestamp", "date"); ok {
		if res := validate.Timestamp(v); res.Valid {
			if t, err := parseNormalized(res.Normalized); err == nil {
				m.Content.Timestamp = t
			}
		}
	}

	// Fall back to sane enum defaults so priority weights always resolve.
	if m.MemoryType == "" {
		m.MemoryType = types.TypeEpisodic
	}
	if m.Kind == "" {
		m.Kind = types.KindRaw
	}
	if m.Importance == "" {
		m.Importance = types.ImportanceLow
	}
}

func applyDynamics(d *types.Dynamics, raw map[string]interface{}) {
	if v, ok := asNumber(raw["initialPriority"]); ok {
		d.InitialPriority = v
	}
	if v, ok := asNumber(raw["currentPriority"]); ok {
		d.CurrentPriority = v
	}
	if v, ok := asNumber(raw["accessCount"]); ok && v >= 0 {
		d.AccessCount = int(v)
		if d.AccessCount > d.MaxAccessCount {
			d.MaxAccessCount = d.AccessCount
		}
	}
	if v, ok := raw["stability"].(string); ok && types.IsValidStability(v) {
		d.Stability = types.Stability(v)
	}
	if v, ok := raw["createdAt"].(string); ok {
		if res := validate.Timestamp(v); res.Valid {
			if t, err := parseNormalized(res.Normalized); err == nil {
				d.CreatedAt = t
			}
		}
	}
	if v, ok := raw["lastAccessedAt"].(string); ok {
		if res := validate.Timestamp(v); res.Valid {
			if t, err := parseNormalized(res.Normalized); err == nil {
				d.LastAccessedAt = &t
			}
		}
	}
}

// stripPersisted returns a copy of md without the keys that live in columns
// or in the edge table. The remaining JSON is what gets stored.
func stripPersisted(md map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(md))
	for k, v := range md {
		switch k {
		case "dynamics", "relationships":
			// Columns and the edge table stay authoritative.
		default:
			out[k] = v
		}
	}
	return out
}

// extractRelationships pulls the relationships list out of metadata. The
// second return reports whether the key was present at all: absent means
// leave edges untouched, present (even empty) means replace them.
func extractRelationships(md map[string]interface{}, sourceID string) ([]types.Relationship, bool, error) {
	raw, present := md["relationships"]
	if !present {
		return nil, false, nil
	}

	list, ok := raw.([]interface{})
	if !ok {
		return nil, false, fmt.Errorf("relationships must be a list, got %T", raw)
	}

	rels := make([]types.Relationship, 0, len(list))
	for i, elem := range list {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			return nil, false, fmt.Errorf("relationships[%d] must be an object", i)
		}
		rel := types.Relationship{SourceID: sourceID}
		rel.TargetID, _ = obj["targetId"].(string)
		if rel.TargetID == "" {
			return nil, false, fmt.Errorf("relationships[%d] is missing targetId", i)
		}
		if t, ok := obj["type"].(string); ok {
			rel.Type = types.RelationshipType(t)
		}
		if w, ok := asNumber(obj["weight"]); ok {
			rel.Weight = &w
		}
		if meta, ok := obj["metadata"].(map[string]interface{}); ok {
			rel.Metadata = meta
		}
		rels = append(rels, rel)
	}
	return rels, true, nil
}

func stringKey(md map[string]interface{}, key, alias string) (string, bool) {
	if v, ok := md[key].(string); ok && v != "" {
		return v, true
	}
	if alias != "" {
		if v, ok := md[alias].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
