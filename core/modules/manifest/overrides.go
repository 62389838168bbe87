package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cordum/modhost/core/infra/schema"
	"gopkg.in/yaml.v3"
)

// ErrIDOverride is returned when overrides try to change the module id.
var ErrIDOverride = errors.New("module id cannot be overridden")

//go:embed schema/overrides.schema.json
var overridesSchema []byte

// UIOverrides is a partial update of UI; set fields replace the original.
type UIOverrides struct {
	MenuLabel *string `json:"menuLabel,omitempty"`
	MenuPath  *string `json:"menuPath,omitempty"`
	Icon      *string `json:"icon,omitempty"`
}

// Overrides is a partial manifest supplied by the caller at import time.
// Nil fields leave the archived manifest untouched.
type Overrides struct {
	ID          *string      `json:"id,omitempty"`
	Name        *string      `json:"name,omitempty"`
	Version     *string      `json:"version,omitempty"`
	Description *string      `json:"description,omitempty"`
	BasePath    *string      `json:"basePath,omitempty"`
	Entry       *string      `json:"entry,omitempty"`
	Routes      *string      `json:"routes,omitempty"`
	Permissions *[]string    `json:"permissions,omitempty"`
	UI          *UIOverrides `json:"ui,omitempty"`
	RouteExport *string      `json:"routeExport,omitempty"`
	Release     *Release     `json:"release,omitempty"`
}

// ParseOverrides decodes a JSON or YAML override document after checking it
// against the override schema. Unknown keys and wrongly typed values are
// rejected with a *schema.Error.
func ParseOverrides(data []byte) (*Overrides, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	if err := schema.ValidateSchema("overrides", overridesSchema, payload); err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	var o Overrides
	if err := json.Unmarshal(normalized, &o); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	return &o, nil
}

// Apply returns m with o merged in. Identity overrides are refused, ui is
// merged field by field and permissions are replaced wholesale.
func (m Manifest) Apply(o *Overrides) (Manifest, error) {
	if o == nil {
		return m, nil
	}
	if o.ID != nil {
		return m, ErrIDOverride
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&m.Name, o.Name)
	set(&m.Version, o.Version)
	set(&m.Description, o.Description)
	set(&m.BasePath, o.BasePath)
	set(&m.Entry, o.Entry)
	set(&m.Routes, o.Routes)
	set(&m.RouteExport, o.RouteExport)
	if o.Permissions != nil {
		m.Permissions = append([]string{}, (*o.Permissions)...)
	}
	if o.UI != nil {
		set(&m.UI.MenuLabel, o.UI.MenuLabel)
		set(&m.UI.MenuPath, o.UI.MenuPath)
		set(&m.UI.Icon, o.UI.Icon)
	}
	if o.Release != nil {
		rel := *o.Release
		m.Release = &rel
	}
	return m, nil
}
