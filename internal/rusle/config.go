// Package rusle holds the versioned RUSLE model configuration: the
// system defaults, recursive merging of sparse user overrides, and
// validation of overrides against the defaults schema.
package rusle

import (
	"fmt"
	"sort"
	"strings"
)

// Version identifies the defaults tree below. It is persisted in job
// metadata so effective-config snapshots stay reproducible after the
// defaults change.
const Version = "2024.1"

// Defaults is an immutable handle on a versioned defaults tree. Callers
// receive deep copies; the tree itself is never mutated.
type Defaults struct {
	version string
	tree    map[string]any
}

// NewDefaults returns the current versioned RUSLE defaults.
func NewDefaults() Defaults {
	return Defaults{version: Version, tree: defaultTree}
}

// Version returns the defaults version string.
func (d Defaults) Version() string { return d.version }

// Tree returns a deep copy of the defaults tree.
func (d Defaults) Tree() map[string]any {
	return deepCopyMap(d.tree)
}

// Effective validates overrides against the defaults schema and returns
// the fully merged configuration. Merge rules: maps merge depth-wise, a
// nil override deletes the key, any other value (scalars, arrays)
// replaces the default wholesale.
func (d Defaults) Effective(overrides map[string]any) (map[string]any, error) {
	if err := d.Validate(overrides); err != nil {
		return nil, err
	}
	merged := deepCopyMap(d.tree)
	mergeInto(merged, overrides)
	return merged, nil
}

// Validate walks the overrides and rejects any key not present in the
// defaults schema, or any value whose shape (map vs array vs scalar)
// disagrees with the default's sample value. The returned error names
// the offending dotted path.
func (d Defaults) Validate(overrides map[string]any) error {
	return validateAgainst(d.tree, overrides, nil)
}

// ValidationError reports a bad configuration override.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rusle config override at %q: %s", e.Path, e.Reason)
}

func validateAgainst(base map[string]any, overrides map[string]any, path []string) error {
	// Deterministic error order for tests and logs.
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := overrides[key]
		childPath := append(path, key)
		sample, known := base[key]
		if !known {
			return &ValidationError{Path: dotted(childPath), Reason: "unknown key"}
		}
		if val == nil {
			// Explicit null deletes the key; any key may be deleted.
			continue
		}
		switch sampleTyped := sample.(type) {
		case map[string]any:
			sub, ok := val.(map[string]any)
			if !ok {
				return &ValidationError{Path: dotted(childPath), Reason: fmt.Sprintf("object expected, got %s", shapeOf(val))}
			}
			if err := validateAgainst(sampleTyped, sub, childPath); err != nil {
				return err
			}
		case []any:
			if _, ok := val.([]any); !ok {
				return &ValidationError{Path: dotted(childPath), Reason: fmt.Sprintf("array expected, got %s", shapeOf(val))}
			}
		default:
			switch val.(type) {
			case map[string]any:
				return &ValidationError{Path: dotted(childPath), Reason: "scalar expected, got object"}
			case []any:
				return &ValidationError{Path: dotted(childPath), Reason: "scalar expected, got array"}
			}
		}
	}
	return nil
}

func mergeInto(base map[string]any, overrides map[string]any) {
	for key, val := range overrides {
		if val == nil {
			delete(base, key)
			continue
		}
		if sub, ok := val.(map[string]any); ok {
			if baseSub, ok := base[key].(map[string]any); ok {
				mergeInto(baseSub, sub)
				continue
			}
		}
		base[key] = deepCopyValue(val)
	}
}

func dotted(path []string) string { return strings.Join(path, ".") }

func shapeOf(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "scalar"
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return deepCopyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
