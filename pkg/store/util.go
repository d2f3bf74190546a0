package store

import (
	"encoding/json"
	"fmt"
)

// MaxQueryParams bounds the number of ids bound into one IN list.
const MaxQueryParams = 500

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MarshalProperties encodes a property bag for storage. Nil becomes "{}".
func MarshalProperties(props map[string]any) ([]byte, error) {
	if props == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}
	return b, nil
}

// UnmarshalProperties decodes a stored property bag. Empty input yields an
// empty map.
func UnmarshalProperties(raw []byte) (map[string]any, error) {
	props := map[string]any{}
	if len(raw) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	if props == nil {
		props = map[string]any{}
	}
	return props, nil
}

// ScopeIDs returns the teardown scope of a rebuild: the owner's node ids
// unioned with the owner's document ids.
func ScopeIDs(nodeIDs, documentIDs []string) []string {
	all := make([]string, 0, len(nodeIDs)+len(documentIDs))
	all = append(all, nodeIDs...)
	all = append(all, documentIDs...)
	return DedupeStrings(all)
}
