package validator

import (
	"fmt"

	"github.com/cordum/modhost/core/infra/config"
	"github.com/cordum/modhost/core/modules/archive"
	"github.com/cordum/modhost/core/modules/manifest"
	"github.com/cordum/modhost/core/modules/registry"
)

// Code identifies why an archive was rejected. Codes are stable and meant to
// be shown to end users.
type Code string

const (
	CodeFileCountLimit      Code = "FILE_COUNT_LIMIT"
	CodePathTraversal       Code = "PATH_TRAVERSAL"
	CodeModuleJSONMissing   Code = "MODULE_JSON_MISSING"
	CodeModuleIDOverride    Code = "MODULE_ID_OVERRIDE"
	CodeModuleRootInvalid   Code = "MODULE_ROOT_INVALID"
	CodeZipNameMismatch     Code = "ZIP_NAME_MISMATCH"
	CodeModuleJSONInvalid   Code = "MODULE_JSON_INVALID"
	CodeReleaseTypeInvalid  Code = "RELEASE_TYPE_INVALID"
	CodeOutsideModuleFolder Code = "OUTSIDE_MODULE_FOLDER"
	CodeExtensionNotAllowed Code = "EXTENSION_NOT_ALLOWED"
	CodeBannedPath          Code = "BANNED_PATH"
	CodeSemverInvalid       Code = "SEMVER_INVALID"
	CodeSemverNotGreater    Code = "SEMVER_NOT_GREATER"
	CodeBasePathDuplicate   Code = "BASE_PATH_DUPLICATE"
)

// FindingType grades a finding.
type FindingType string

const (
	FindingSuccess FindingType = "success"
	FindingWarning FindingType = "warning"
	FindingError   FindingType = "error"
)

// Finding is one validation outcome. Lists of findings are stored on import
// jobs as audit data and returned to callers as the rejection payload.
type Finding struct {
	Type    FindingType `json:"type"`
	Message string      `json:"message"`
	Details string      `json:"details,omitempty"`
}

// Error is a typed validation failure.
type Error struct {
	Code     Code
	Message  string
	Findings []Finding
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func fail(code Code, message string, findings ...Finding) *Error {
	if len(findings) == 0 {
		findings = []Finding{{Type: FindingError, Message: message}}
	}
	return &Error{Code: code, Message: message, Findings: findings}
}

func errorFinding(message, details string) Finding {
	return Finding{Type: FindingError, Message: message, Details: details}
}

// Context carries everything the pipeline needs besides the entries.
type Context struct {
	// FileName is the original archive name; when set its base must match the module id.
	FileName  string
	Overrides *manifest.Overrides
	// Registry is the current set of installed modules.
	Registry []registry.Entry
	Policy   config.Policy
	// RequireReleaseType enforces manifest.release.type, used by updates.
	RequireReleaseType bool
	// SkipVersionCheck allows reinstalling the same or an older version.
	SkipVersionCheck bool
}

// Result is a validated archive ready for extraction.
type Result struct {
	ModuleID     string
	ModuleRoot   string
	ManifestPath string
	Manifest     manifest.Manifest
	Entries      []archive.Entry
	Findings     []Finding
}
