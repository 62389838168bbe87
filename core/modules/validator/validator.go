// Package validator runs the ordered checks an uploaded module archive must
// pass before anything is written to disk.
package validator

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cordum/modhost/core/modules/archive"
	"github.com/cordum/modhost/core/modules/manifest"
	"github.com/cordum/modhost/core/modules/pathpolicy"
	"github.com/cordum/modhost/core/modules/registry"
)

// maxManifestBytes caps how much of a candidate module.json is read.
const maxManifestBytes = 1 << 20

const modulesPrefix = "src/modules/"

// Validate checks entries against the archive policy. Checks run in a fixed
// order and stop at the first failure, except the required-field check which
// reports every missing field at once. Failures are returned as *Error.
func Validate(entries []archive.Entry, vctx Context) (*Result, error) {
	files := 0
	for _, e := range entries {
		if !e.Dir {
			files++
		}
	}
	if vctx.Policy.MaxFileCount > 0 && files > vctx.Policy.MaxFileCount {
		return nil, fail(CodeFileCountLimit, "Archive contains too many files",
			errorFinding("Archive contains too many files", fmt.Sprintf("%d > %d", files, vctx.Policy.MaxFileCount)))
	}

	for _, e := range entries {
		if pathpolicy.IsTraversal(e.Path) {
			return nil, fail(CodePathTraversal, "Archive contains an unsafe path",
				errorFinding("Archive contains an unsafe path", e.Path))
		}
	}

	candidates := []archive.Entry{}
	for _, e := range entries {
		if e.Dir {
			continue
		}
		p := pathpolicy.Normalize(e.Path)
		if p == manifest.FileName || strings.HasSuffix(p, "/"+manifest.FileName) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, fail(CodeModuleJSONMissing, "module.json not found in archive")
	}

	sel, verr := selectRoot(candidates, vctx.Overrides)
	if verr != nil {
		return nil, verr
	}
	m := sel.manifest
	moduleID := sel.moduleID
	root := sel.root

	if vctx.FileName != "" {
		base := path.Base(pathpolicy.Normalize(vctx.FileName))
		base = strings.TrimSuffix(base, path.Ext(base))
		if base != moduleID {
			return nil, fail(CodeZipNameMismatch, "Archive name must match the module id",
				errorFinding("Archive name must match the module id", fmt.Sprintf("%s != %s", base, moduleID)))
		}
	}

	if missing := m.MissingFields(); len(missing) > 0 {
		findings := make([]Finding, 0, len(missing))
		for _, field := range missing {
			msg := "Missing required field: " + field
			if field == "permissions" {
				msg = "Missing required field: permissions (must be an array)"
			}
			findings = append(findings, errorFinding(msg, field))
		}
		return nil, fail(CodeModuleJSONInvalid, "module.json is missing required fields", findings...)
	}

	if vctx.RequireReleaseType {
		relType := ""
		if m.Release != nil {
			relType = m.Release.Type
		}
		if !manifest.ValidReleaseType(relType) {
			return nil, fail(CodeReleaseTypeInvalid, "release.type must be patch, minor or major",
				errorFinding("release.type must be patch, minor or major", relType))
		}
	}

	if root != "" {
		for _, e := range entries {
			if !pathpolicy.Within(e.Path, root) {
				return nil, fail(CodeOutsideModuleFolder, "Archive entry lies outside the module folder",
					errorFinding("Archive entry lies outside the module folder", e.Path))
			}
		}
	}

	for _, e := range entries {
		if e.Dir {
			continue
		}
		rel := pathpolicy.Relative(e.Path, root)
		if !pathpolicy.HasAllowedExtension(rel, vctx.Policy.AllowedExtensions) {
			return nil, fail(CodeExtensionNotAllowed, "File type is not allowed",
				errorFinding("File type is not allowed", rel))
		}
		if pathpolicy.IsBanned(rel, vctx.Policy.BannedPaths) {
			return nil, fail(CodeBannedPath, "File path is not allowed in a module",
				errorFinding("File path is not allowed in a module", rel))
		}
	}

	if existing, ok := registry.Find(vctx.Registry, moduleID); ok {
		next, err := semver.StrictNewVersion(m.Version)
		if err != nil {
			return nil, fail(CodeSemverInvalid, "version is not a valid semantic version",
				errorFinding("version is not a valid semantic version", m.Version))
		}
		if !vctx.SkipVersionCheck {
			if prev, err := semver.NewVersion(existing.Version); err == nil && !next.GreaterThan(prev) {
				return nil, fail(CodeSemverNotGreater, "version must be greater than the installed version",
					errorFinding("version must be greater than the installed version",
						fmt.Sprintf("%s <= %s", m.Version, existing.Version)))
			}
		}
	}

	for _, other := range vctx.Registry {
		if other.ID != moduleID && other.BasePath == m.BasePath {
			return nil, fail(CodeBasePathDuplicate, "basePath is already used by another module",
				errorFinding("basePath is already used by another module", fmt.Sprintf("%s (%s)", m.BasePath, other.ID)))
		}
	}

	return &Result{
		ModuleID:     moduleID,
		ModuleRoot:   root,
		ManifestPath: sel.path,
		Manifest:     m,
		Entries:      entries,
		Findings: []Finding{
			{Type: FindingSuccess, Message: "module.json found", Details: sel.path},
			{Type: FindingSuccess, Message: "Archive passed validation", Details: fmt.Sprintf("%s@%s", moduleID, m.Version)},
		},
	}, nil
}

type selection struct {
	path     string
	root     string
	moduleID string
	manifest manifest.Manifest
}

// selectRoot picks the first module.json whose folder is an acceptable module
// root and whose id matches the folder name.
func selectRoot(candidates []archive.Entry, overrides *manifest.Overrides) (*selection, *Error) {
	tried := make([]string, 0, len(candidates))
	for _, c := range candidates {
		p := pathpolicy.Normalize(c.Path)
		tried = append(tried, p)
		root := ""
		if p != manifest.FileName {
			root = strings.TrimSuffix(p, "/"+manifest.FileName)
		}
		if !validRoot(root) {
			continue
		}
		data, err := c.ReadAll(maxManifestBytes)
		if err != nil {
			return nil, fail(CodeModuleJSONInvalid, "module.json could not be read", errorFinding("module.json could not be read", err.Error()))
		}
		parsed, err := manifest.Parse(data)
		if err != nil {
			return nil, fail(CodeModuleJSONInvalid, "module.json is not valid JSON", errorFinding("module.json is not valid JSON", err.Error()))
		}
		applied, err := parsed.Apply(overrides)
		if err != nil {
			if errors.Is(err, manifest.ErrIDOverride) {
				return nil, fail(CodeModuleIDOverride, "Overrides cannot change the module id")
			}
			return nil, fail(CodeModuleJSONInvalid, "overrides could not be applied", errorFinding("overrides could not be applied", err.Error()))
		}
		inferred := applied.ID
		if root != "" {
			inferred = path.Base(root)
		}
		if applied.ID == inferred {
			return &selection{path: p, root: root, moduleID: inferred, manifest: applied}, nil
		}
	}
	return nil, fail(CodeModuleRootInvalid, "No module.json sits in a valid module folder matching its id",
		errorFinding("No module.json sits in a valid module folder matching its id", strings.Join(tried, ", ")))
}

func validRoot(root string) bool {
	return root == "" || !strings.Contains(root, "/") || strings.HasPrefix(root, modulesPrefix)
}
