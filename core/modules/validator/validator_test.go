package validator

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cordum/modhost/core/infra/config"
	"github.com/cordum/modhost/core/modules/archive"
	"github.com/cordum/modhost/core/modules/manifest"
	"github.com/cordum/modhost/core/modules/registry"
)

func manifestJSON(id, version, basePath string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "name": "Widgets",
  "version": %q,
  "basePath": %q,
  "entry": "index.tsx",
  "routes": "routes.tsx",
  "permissions": ["widgets.read"],
  "ui": {"menuLabel": "Widgets", "menuPath": "/widgets"},
  "routeExport": "widgetsRoute"
}`, id, version, basePath))
}

func widgetsEntries(version string) []archive.Entry {
	return []archive.Entry{
		archive.NewEntry("module.json", manifestJSON("widgets", version, "/widgets")),
		archive.NewEntry("index.tsx", []byte("export default 1")),
		archive.NewEntry("routes.tsx", []byte("export const widgetsRoute = {}")),
	}
}

func baseContext() Context {
	return Context{Policy: config.DefaultPolicy()}
}

func expectCode(t *testing.T, err error, code Code) *Error {
	t.Helper()
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error %s, got %v", code, err)
	}
	if verr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, verr.Code, verr.Message)
	}
	if len(verr.Findings) == 0 {
		t.Fatalf("expected findings for %s", code)
	}
	return verr
}

func TestValidateRootLevelManifest(t *testing.T) {
	vctx := baseContext()
	vctx.FileName = "widgets.zip"
	res, err := Validate(widgetsEntries("1.0.0"), vctx)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.ModuleID != "widgets" || res.ModuleRoot != "" {
		t.Fatalf("unexpected result: id=%q root=%q", res.ModuleID, res.ModuleRoot)
	}
	if len(res.Findings) != 2 || res.Findings[0].Type != FindingSuccess || res.Findings[1].Type != FindingSuccess {
		t.Fatalf("expected two success findings, got %+v", res.Findings)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("expected entries to be returned")
	}
}

func TestValidatePathTraversal(t *testing.T) {
	entries := append(widgetsEntries("1.0.0"), archive.NewEntry("../evil.ts", []byte("x")))
	_, err := Validate(entries, baseContext())
	verr := expectCode(t, err, CodePathTraversal)
	if verr.Findings[0].Details != "../evil.ts" {
		t.Fatalf("unexpected details %q", verr.Findings[0].Details)
	}
}

func TestValidateFileCountPrecedesTraversal(t *testing.T) {
	entries := append(widgetsEntries("1.0.0"), archive.NewEntry("../evil.ts", []byte("x")))
	vctx := baseContext()
	vctx.Policy.MaxFileCount = 2
	_, err := Validate(entries, vctx)
	expectCode(t, err, CodeFileCountLimit)
}

func TestValidateFileCountIgnoresDirectories(t *testing.T) {
	entries := append([]archive.Entry{archive.NewEntry("assets/", nil)}, widgetsEntries("1.0.0")...)
	vctx := baseContext()
	vctx.Policy.MaxFileCount = 3
	if _, err := Validate(entries, vctx); err != nil {
		t.Fatalf("directory entries should not count: %v", err)
	}
}

func TestValidateZipNameMismatch(t *testing.T) {
	vctx := baseContext()
	vctx.FileName = "tools.zip"
	_, err := Validate(widgetsEntries("1.0.0"), vctx)
	verr := expectCode(t, err, CodeZipNameMismatch)
	if verr.Findings[0].Details != "tools != widgets" {
		t.Fatalf("unexpected details %q", verr.Findings[0].Details)
	}
}

func TestValidateSemverNotGreater(t *testing.T) {
	vctx := baseContext()
	vctx.Registry = []registry.Entry{registry.NewEntry(manifest.Manifest{
		ID: "widgets", Version: "1.0.0", BasePath: "/widgets",
	}, "admin", time.Now())}
	_, err := Validate(widgetsEntries("1.0.0"), vctx)
	expectCode(t, err, CodeSemverNotGreater)

	vctx.SkipVersionCheck = true
	if _, err := Validate(widgetsEntries("1.0.0"), vctx); err != nil {
		t.Fatalf("skip version check: %v", err)
	}
	if _, err := Validate(widgetsEntries("1.1.0"), baseContextWith(vctx.Registry)); err != nil {
		t.Fatalf("greater version: %v", err)
	}
}

func baseContextWith(entries []registry.Entry) Context {
	vctx := baseContext()
	vctx.Registry = entries
	return vctx
}

func TestValidateSemverInvalid(t *testing.T) {
	vctx := baseContextWith([]registry.Entry{registry.NewEntry(manifest.Manifest{
		ID: "widgets", Version: "1.0.0", BasePath: "/widgets",
	}, "admin", time.Now())})
	vctx.SkipVersionCheck = true
	_, err := Validate(widgetsEntries("v1"), vctx)
	expectCode(t, err, CodeSemverInvalid)
}

func TestValidateBannedPath(t *testing.T) {
	entries := []archive.Entry{
		archive.NewEntry("widgets/", nil),
		archive.NewEntry("widgets/module.json", manifestJSON("widgets", "1.0.0", "/widgets")),
		archive.NewEntry("widgets/src/App.tsx", []byte("x")),
	}
	_, err := Validate(entries, baseContext())
	verr := expectCode(t, err, CodeBannedPath)
	if verr.Findings[0].Details != "src/App.tsx" {
		t.Fatalf("expected path relative to root, got %q", verr.Findings[0].Details)
	}
}

func TestValidateExtensionNotAllowed(t *testing.T) {
	entries := append(widgetsEntries("1.0.0"), archive.NewEntry("run.sh", []byte("#!/bin/sh")))
	_, err := Validate(entries, baseContext())
	expectCode(t, err, CodeExtensionNotAllowed)
}

func TestValidateMissingManifest(t *testing.T) {
	_, err := Validate([]archive.Entry{archive.NewEntry("index.tsx", nil)}, baseContext())
	expectCode(t, err, CodeModuleJSONMissing)
}

func TestValidateNestedRoot(t *testing.T) {
	entries := []archive.Entry{
		archive.NewEntry("src/modules/widgets/module.json", manifestJSON("widgets", "1.0.0", "/widgets")),
		archive.NewEntry("src/modules/widgets/index.tsx", nil),
		archive.NewEntry("src/modules/widgets/routes.tsx", nil),
	}
	res, err := Validate(entries, baseContext())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.ModuleRoot != "src/modules/widgets" {
		t.Fatalf("unexpected root %q", res.ModuleRoot)
	}
}

func TestValidateRootInvalid(t *testing.T) {
	entries := []archive.Entry{
		archive.NewEntry("deep/nested/widgets/module.json", manifestJSON("widgets", "1.0.0", "/widgets")),
	}
	_, err := Validate(entries, baseContext())
	expectCode(t, err, CodeModuleRootInvalid)

	entries = []archive.Entry{
		archive.NewEntry("tools/module.json", manifestJSON("widgets", "1.0.0", "/widgets")),
	}
	_, err = Validate(entries, baseContext())
	expectCode(t, err, CodeModuleRootInvalid)
}

func TestValidateSkipsMismatchedCandidate(t *testing.T) {
	entries := []archive.Entry{
		archive.NewEntry("tools/module.json", manifestJSON("widgets", "1.0.0", "/widgets")),
		archive.NewEntry("widgets/module.json", manifestJSON("widgets", "1.0.0", "/widgets")),
		archive.NewEntry("widgets/index.tsx", nil),
	}
	_, err := Validate(entries, baseContext())
	// widgets/ is picked, which leaves tools/module.json outside the root.
	expectCode(t, err, CodeOutsideModuleFolder)
}

func TestValidateInvalidManifestJSON(t *testing.T) {
	_, err := Validate([]archive.Entry{archive.NewEntry("module.json", []byte("{not json"))}, baseContext())
	expectCode(t, err, CodeModuleJSONInvalid)
}

func TestValidateCollectsMissingFields(t *testing.T) {
	data := []byte(`{"id":"widgets","version":"1.0.0","permissions":"all","ui":{}}`)
	_, err := Validate([]archive.Entry{archive.NewEntry("module.json", data)}, baseContext())
	verr := expectCode(t, err, CodeModuleJSONInvalid)
	want := []string{"name", "basePath", "entry", "routes", "permissions", "ui.menuLabel", "ui.menuPath", "routeExport"}
	if len(verr.Findings) != len(want) {
		t.Fatalf("expected %d findings, got %+v", len(want), verr.Findings)
	}
	for i, field := range want {
		if verr.Findings[i].Details != field {
			t.Fatalf("finding %d: expected %s, got %s", i, field, verr.Findings[i].Details)
		}
	}
}

func TestValidateIDOverride(t *testing.T) {
	id := "other"
	vctx := baseContext()
	vctx.Overrides = &manifest.Overrides{ID: &id}
	_, err := Validate(widgetsEntries("1.0.0"), vctx)
	expectCode(t, err, CodeModuleIDOverride)
}

func TestValidateAppliesOverrides(t *testing.T) {
	label := "Gadgets"
	vctx := baseContext()
	vctx.Overrides = &manifest.Overrides{UI: &manifest.UIOverrides{MenuLabel: &label}}
	res, err := Validate(widgetsEntries("1.0.0"), vctx)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Manifest.UI.MenuLabel != "Gadgets" || res.Manifest.UI.MenuPath != "/widgets" {
		t.Fatalf("unexpected ui after override: %+v", res.Manifest.UI)
	}
}

func TestValidateReleaseTypeGate(t *testing.T) {
	vctx := baseContext()
	vctx.RequireReleaseType = true
	_, err := Validate(widgetsEntries("1.0.0"), vctx)
	expectCode(t, err, CodeReleaseTypeInvalid)
}

func TestValidateBasePathDuplicate(t *testing.T) {
	vctx := baseContextWith([]registry.Entry{registry.NewEntry(manifest.Manifest{
		ID: "gadgets", Version: "1.0.0", BasePath: "/widgets",
	}, "admin", time.Now())})
	_, err := Validate(widgetsEntries("1.0.0"), vctx)
	expectCode(t, err, CodeBasePathDuplicate)
}
