// Package manifest defines module.json and the typed override document
// callers may apply on top of it.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FileName is the manifest file name inside a module tree.
const FileName = "module.json"

// Release types accepted by the update flow.
const (
	ReleasePatch = "patch"
	ReleaseMinor = "minor"
	ReleaseMajor = "major"
)

// UI carries the navigation metadata of a module.
type UI struct {
	MenuLabel string `json:"menuLabel"`
	MenuPath  string `json:"menuPath"`
	Icon      string `json:"icon,omitempty"`
}

// Release describes the kind of change an update ships.
type Release struct {
	Type  string `json:"type"`
	Notes string `json:"notes,omitempty"`
}

// Manifest is the declared identity and wiring of a module.
type Manifest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	BasePath    string   `json:"basePath"`
	Entry       string   `json:"entry"`
	Routes      string   `json:"routes"`
	Permissions []string `json:"permissions"`
	UI          UI       `json:"ui"`
	RouteExport string   `json:"routeExport,omitempty"`
	Release     *Release `json:"release,omitempty"`
}

// Parse decodes a module.json document. A "permissions" value that is not an
// array is dropped so that it is reported as missing by MissingFields rather
// than failing the whole decode.
func Parse(data []byte) (Manifest, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", FileName, err)
	}
	if raw == nil {
		return Manifest{}, fmt.Errorf("parse %s: document is not an object", FileName)
	}
	if perms, ok := raw["permissions"]; ok {
		if _, isList := perms.([]any); !isList {
			delete(raw, "permissions")
		}
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", FileName, err)
	}
	var m Manifest
	if err := json.Unmarshal(normalized, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", FileName, err)
	}
	return m, nil
}

// Encode renders the manifest as indented JSON with a trailing newline.
func (m Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// MissingFields lists required fields that are absent or empty, in a stable
// order. Permissions may be an empty array but must be present.
func (m Manifest) MissingFields() []string {
	missing := []string{}
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("id", m.ID)
	check("name", m.Name)
	check("version", m.Version)
	check("basePath", m.BasePath)
	check("entry", m.Entry)
	check("routes", m.Routes)
	if m.Permissions == nil {
		missing = append(missing, "permissions")
	}
	check("ui.menuLabel", m.UI.MenuLabel)
	check("ui.menuPath", m.UI.MenuPath)
	check("routeExport", m.RouteExport)
	return missing
}

// ValidReleaseType reports whether t names a known release type.
func ValidReleaseType(t string) bool {
	switch t {
	case ReleasePatch, ReleaseMinor, ReleaseMajor:
		return true
	default:
		return false
	}
}

// DeriveRouteExport turns a module id into its route export identifier:
// kebab or snake case becomes camelCase with a "Route" suffix, so
// "lead-risk" yields "leadRiskRoute".
func DeriveRouteExport(id string) string {
	parts := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		r, size := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(part[size:])
	}
	b.WriteString("Route")
	return b.String()
}
