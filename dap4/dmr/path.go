package dmr

import (
	"fmt"
	"strings"
)

// ParseFQN splits a fully qualified name into its group path and its
// variable path.
// FQN format: /group/subgroup/variable.field.field
//
// Examples:
//   - "/temp" -> groups=[], vars=["temp"]
//   - "/g1/temp" -> groups=["g1"], vars=["temp"]
//   - "/obs.id" -> groups=[], vars=["obs", "id"]
//
// Returns an error if the name is empty or names no variable.
func ParseFQN(fqn string) (groups, vars []string, err error) {
	if fqn == "" {
		return nil, nil, fmt.Errorf("empty fully qualified name")
	}

	fqn = CleanPath(fqn)
	parts := SplitPath(fqn)
	if len(parts) == 0 {
		return nil, nil, fmt.Errorf("fully qualified name names no variable: %s", fqn)
	}

	groups = parts[:len(parts)-1]
	vars = strings.Split(parts[len(parts)-1], ".")
	for _, v := range vars {
		if v == "" {
			return nil, nil, fmt.Errorf("empty field name in %s", fqn)
		}
	}
	return groups, vars, nil
}

// SplitPath splits a group path into its components.
// Leading and trailing slashes are handled, empty components are removed.
//
// Examples:
//   - "/" -> []string{}
//   - "/foo" -> []string{"foo"}
//   - "/foo/bar" -> []string{"foo", "bar"}
func SplitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return []string{}
	}
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// CleanPath normalizes a path, ensuring it starts with "/" and has no trailing slash.
func CleanPath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(path, "/")
}

func joinGroup(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
