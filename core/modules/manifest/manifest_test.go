package manifest

import (
	"errors"
	"reflect"
	"testing"

	"github.com/cordum/modhost/core/infra/schema"
)

const widgetsJSON = `{
  "id": "widgets",
  "name": "Widgets",
  "version": "1.0.0",
  "basePath": "/widgets",
  "entry": "index.tsx",
  "routes": "routes.tsx",
  "permissions": ["widgets.read"],
  "ui": {"menuLabel": "Widgets", "menuPath": "/widgets", "icon": "box"},
  "routeExport": "widgetsRoute"
}`

func TestParseManifest(t *testing.T) {
	m, err := Parse([]byte(widgetsJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.ID != "widgets" || m.UI.MenuLabel != "Widgets" || len(m.Permissions) != 1 {
		t.Fatalf("unexpected manifest %#v", m)
	}
	if missing := m.MissingFields(); len(missing) != 0 {
		t.Fatalf("expected complete manifest, missing %v", missing)
	}
}

func TestParseDropsNonArrayPermissions(t *testing.T) {
	m, err := Parse([]byte(`{"id":"widgets","permissions":"all"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Permissions != nil {
		t.Fatalf("expected permissions dropped, got %v", m.Permissions)
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"id":`)); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Parse([]byte(`null`)); err == nil {
		t.Fatalf("expected error for null document")
	}
}

func TestMissingFields(t *testing.T) {
	m := Manifest{ID: "widgets", Permissions: []string{}}
	want := []string{"name", "version", "basePath", "entry", "routes", "ui.menuLabel", "ui.menuPath", "routeExport"}
	if got := m.MissingFields(); !reflect.DeepEqual(got, want) {
		t.Fatalf("MissingFields = %v, want %v", got, want)
	}
	m.Permissions = nil
	got := m.MissingFields()
	if len(got) != len(want)+1 || got[5] != "permissions" {
		t.Fatalf("expected permissions reported, got %v", got)
	}
}

func TestDeriveRouteExport(t *testing.T) {
	cases := map[string]string{
		"widgets":        "widgetsRoute",
		"lead-risk":      "leadRiskRoute",
		"lead_risk_beta": "leadRiskBetaRoute",
		"a--b":           "aBRoute",
		"":               "",
	}
	for in, want := range cases {
		if got := DeriveRouteExport(in); got != want {
			t.Fatalf("DeriveRouteExport(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidReleaseType(t *testing.T) {
	for _, v := range []string{"patch", "minor", "major"} {
		if !ValidReleaseType(v) {
			t.Fatalf("expected %s valid", v)
		}
	}
	if ValidReleaseType("hotfix") || ValidReleaseType("") {
		t.Fatalf("expected invalid release types rejected")
	}
}

func TestApplyOverrides(t *testing.T) {
	m, err := Parse([]byte(widgetsJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	o, err := ParseOverrides([]byte(`
name: Widget Board
permissions: [widgets.admin, widgets.read]
ui:
  menuLabel: Board
`))
	if err != nil {
		t.Fatalf("parse overrides: %v", err)
	}
	out, err := m.Apply(o)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Name != "Widget Board" {
		t.Fatalf("expected name override, got %s", out.Name)
	}
	if out.UI.MenuLabel != "Board" || out.UI.MenuPath != "/widgets" || out.UI.Icon != "box" {
		t.Fatalf("expected shallow ui merge, got %#v", out.UI)
	}
	if !reflect.DeepEqual(out.Permissions, []string{"widgets.admin", "widgets.read"}) {
		t.Fatalf("expected permissions replaced, got %v", out.Permissions)
	}
	if m.Name != "Widgets" {
		t.Fatalf("apply must not mutate the receiver")
	}
}

func TestApplyEmptyPermissionsReplaces(t *testing.T) {
	m := Manifest{ID: "widgets", Permissions: []string{"a", "b"}}
	o, err := ParseOverrides([]byte(`{"permissions": []}`))
	if err != nil {
		t.Fatalf("parse overrides: %v", err)
	}
	out, err := m.Apply(o)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Permissions == nil || len(out.Permissions) != 0 {
		t.Fatalf("expected empty permissions, got %#v", out.Permissions)
	}
}

func TestApplyRejectsIDOverride(t *testing.T) {
	o, err := ParseOverrides([]byte(`{"id": "tools"}`))
	if err != nil {
		t.Fatalf("parse overrides: %v", err)
	}
	if _, err := (Manifest{ID: "widgets"}).Apply(o); !errors.Is(err, ErrIDOverride) {
		t.Fatalf("expected ErrIDOverride, got %v", err)
	}
}

func TestParseOverridesSchema(t *testing.T) {
	_, err := ParseOverrides([]byte(`{"nme": "typo", "permissions": "all"}`))
	var serr *schema.Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if len(serr.Violations) < 2 {
		t.Fatalf("expected violations for both fields, got %#v", serr.Violations)
	}
	if o, err := ParseOverrides(nil); err != nil || o != nil {
		t.Fatalf("expected nil overrides for empty input")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m, err := Parse([]byte(widgetsJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !reflect.DeepEqual(back, m) {
		t.Fatalf("round trip mismatch: %#v vs %#v", back, m)
	}
}
