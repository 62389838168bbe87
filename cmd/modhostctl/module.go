package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cordum/modhost/core/modules/archive"
	"github.com/cordum/modhost/core/modules/history"
	"github.com/cordum/modhost/core/modules/host"
	"github.com/cordum/modhost/core/modules/importer"
	"github.com/cordum/modhost/core/modules/installer"
	"github.com/cordum/modhost/core/modules/manifest"
	"github.com/cordum/modhost/core/modules/validator"
)

func runImportCmd(args []string) {
	fs := newFlagSet("import")
	overridesPath := fs.String("overrides", "", "manifest overrides file (yaml or json)")
	update := fs.Bool("update", false, "require manifest release.type")
	force := fs.Bool("force", false, "skip the version check")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("usage: import <module.zip>")
	}
	src := fs.Arg(0)
	overrides, err := loadOverrides(*overridesPath)
	check(err)

	h := openHost()
	staged, size, err := stageUpload(h.Config.WorkDir, src)
	if err != nil {
		_ = h.Close()
		fail(err.Error())
	}
	job, err := h.Service.Import(context.Background(), importer.Request{
		ArchivePath:        staged,
		FileName:           filepath.Base(src),
		FileSize:           size,
		RequestedBy:        *fs.user,
		Overrides:          overrides,
		RequireReleaseType: *update,
		SkipVersionCheck:   *force,
	})
	finishJob(h, job, err, history.StatusCompleted)
}

func runRollbackCmd(args []string) {
	fs := newFlagSet("rollback")
	jobID := fs.String("job", "", "import job whose snapshot to restore")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("usage: rollback <module_id>")
	}
	h := openHost()
	job, err := h.Service.Rollback(context.Background(), importer.RollbackRequest{
		ModuleID:    fs.Arg(0),
		JobID:       *jobID,
		RequestedBy: *fs.user,
	})
	finishJob(h, job, err, history.StatusRolledBack)
}

// finishJob prints the job and exits non-zero unless it reached want.
func finishJob(h *host.Host, job *importer.Job, err error, want history.Status) {
	_ = h.Close()
	check(err)
	printJSON(job)
	if job.Status != want {
		os.Exit(1)
	}
}

func runValidateCmd(args []string) {
	fs := newFlagSet("validate")
	overridesPath := fs.String("overrides", "", "manifest overrides file (yaml or json)")
	update := fs.Bool("update", false, "require manifest release.type")
	force := fs.Bool("force", false, "skip the version check")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("usage: validate <module.zip>")
	}
	overrides, err := loadOverrides(*overridesPath)
	check(err)

	h := openHost()
	defer h.Close()
	entries, err := h.Registry.Load(context.Background())
	check(err)
	report, err := validateArchive(fs.Arg(0), validator.Context{
		FileName:           filepath.Base(fs.Arg(0)),
		Overrides:          overrides,
		Registry:           entries,
		Policy:             h.Config.Policy,
		RequireReleaseType: *update,
		SkipVersionCheck:   *force,
	})
	check(err)
	printJSON(report)
	if !report.Valid {
		_ = h.Close()
		os.Exit(1)
	}
}

type validationReport struct {
	Valid    bool                `json:"valid"`
	Code     validator.Code      `json:"code,omitempty"`
	Message  string              `json:"message,omitempty"`
	ModuleID string              `json:"moduleId,omitempty"`
	Root     string              `json:"moduleRoot,omitempty"`
	Manifest *manifest.Manifest  `json:"manifest,omitempty"`
	Findings []validator.Finding `json:"findings"`
}

// validateArchive runs the validation pipeline without installing anything.
// A rejected archive is reported, not returned as an error.
func validateArchive(path string, vctx validator.Context) (validationReport, error) {
	r, err := archive.Open(path)
	if err != nil {
		return validationReport{}, err
	}
	defer r.Close()

	res, err := validator.Validate(r.Entries(), vctx)
	if err != nil {
		var verr *validator.Error
		if errors.As(err, &verr) {
			return validationReport{Code: verr.Code, Message: verr.Message, Findings: verr.Findings}, nil
		}
		return validationReport{}, err
	}
	m := res.Manifest
	return validationReport{
		Valid:    true,
		ModuleID: res.ModuleID,
		Root:     res.ModuleRoot,
		Manifest: &m,
		Findings: res.Findings,
	}, nil
}

func runPackCmd(args []string) {
	fs := newFlagSet("pack")
	out := fs.String("out", "", "output archive (default <id>.zip)")
	prefix := fs.String("prefix", "", "root folder inside the archive (default module id)")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("usage: pack <module_dir>")
	}
	path, err := packModule(fs.Arg(0), *out, *prefix)
	check(err)
	fmt.Println(path)
}

// packModule zips a module directory under its id so the result passes the
// file-name and root-folder checks on import.
func packModule(dir, out, prefix string) (string, error) {
	m, err := installer.ReadManifest(dir)
	if err != nil {
		return "", err
	}
	if prefix == "" {
		prefix = m.ID
	}
	if out == "" {
		out = m.ID + ".zip"
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	// #nosec G304 -- output path is chosen by the operator.
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := archive.WriteDir(f, dir, prefix); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return "", fmt.Errorf("pack %s: %w", dir, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return out, nil
}

func loadOverrides(path string) (*manifest.Overrides, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	// #nosec G304 -- CLI explicitly reads local files provided by the operator.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return manifest.ParseOverrides(data)
}

// stageUpload copies src into workDir. The importer deletes the uploaded
// file when the job ends, so the operator's archive is never handed to it.
func stageUpload(workDir, src string) (string, int64, error) {
	// #nosec G304 -- CLI explicitly reads local files provided by the operator.
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return "", 0, err
	}
	if info.IsDir() {
		return "", 0, fmt.Errorf("%s is a directory", src)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", 0, err
	}
	out, err := os.CreateTemp(workDir, "upload-*.zip")
	if err != nil {
		return "", 0, err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", 0, fmt.Errorf("stage upload: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", 0, err
	}
	return out.Name(), info.Size(), nil
}

func runModulesCmd(args []string) {
	if len(args) < 1 || args[0] != "list" {
		usage()
		os.Exit(1)
	}
	fs := newFlagSet("modules list")
	fs.ParseArgs(args[1:])
	h := openHost()
	defer h.Close()
	entries, err := h.Registry.Load(context.Background())
	check(err)
	printJSON(entries)
}

func runHistoryCmd(args []string) {
	fs := newFlagSet("history")
	moduleID := fs.String("module", "", "only jobs for this module")
	fs.ParseArgs(args)
	h := openHost()
	defer h.Close()
	var (
		jobs []history.Job
		err  error
	)
	if *moduleID != "" {
		jobs, err = h.History.ListByModule(context.Background(), *moduleID)
	} else {
		jobs, err = h.History.Load(context.Background())
	}
	check(err)
	printJSON(jobs)
}
