// Package fingerprint derives the stable digests that form part of a
// job's cache key: one for the effective RUSLE configuration, one for
// an optional user-drawn geometry. Semantically identical inputs always
// digest identically regardless of construction order; any nested value
// difference changes the digest.
package fingerprint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// GeometrySentinel is the geometry_hash for jobs that use the area's
// reference geometry as-is. It is distinct from every real digest
// (digests are 16 hex characters).
const GeometrySentinel = ""

const digestLen = 16

// Config digests a fully merged configuration tree.
func Config(effective map[string]any) (string, error) {
	return digest(effective)
}

// Geometry digests a GeoJSON-like geometry object. A nil geometry maps
// to GeometrySentinel.
func Geometry(geom map[string]any) (string, error) {
	if geom == nil {
		return GeometrySentinel, nil
	}
	return digest(geom)
}

func digest(m map[string]any) (string, error) {
	var sb strings.Builder
	if err := writeCanonical(&sb, m); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return fmt.Sprintf("%x", sum)[:digestLen], nil
}

// writeCanonical emits a canonical JSON form: object keys sorted
// lexicographically at every level, arrays in given order.
func writeCanonical(sb *strings.Builder, v any) error {
	switch typed := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(keyJSON)
			sb.WriteByte(':')
			if err := writeCanonical(sb, typed[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
		return nil
	case []any:
		sb.WriteByte('[')
		for i, item := range typed {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeCanonical(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(typed)
		if err != nil {
			return fmt.Errorf("fingerprint: unsupported value %T: %w", v, err)
		}
		sb.Write(b)
		return nil
	}
}
