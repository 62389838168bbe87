package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cordum/modhost/core/infra/buildinfo"
	"github.com/cordum/modhost/core/infra/config"
	"github.com/cordum/modhost/core/modules/host"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "import":
		runImportCmd(args)
	case "rollback":
		runRollbackCmd(args)
	case "validate":
		runValidateCmd(args)
	case "pack":
		runPackCmd(args)
	case "modules":
		runModulesCmd(args)
	case "history":
		runHistoryCmd(args)
	case "menu":
		runMenuCmd(args)
	case "version":
		fmt.Println(buildinfo.Info())
	default:
		usage()
		os.Exit(1)
	}
}

type flagSet struct {
	*flag.FlagSet
	user *string
}

func newFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	user := fs.String("user", envOr("MODHOST_USER", envOr("USER", "cli")), "identity recorded on jobs")
	return &flagSet{FlagSet: fs, user: user}
}

func (fs *flagSet) ParseArgs(args []string) {
	if err := fs.Parse(args); err != nil {
		fail(err.Error())
	}
}

func openHost() *host.Host {
	cfg, err := config.Load()
	check(err)
	h, err := host.Open(cfg)
	check(err)
	return h
}

func printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	check(err)
	fmt.Println(string(data))
}

func usage() {
	fmt.Print(`modhostctl - module host CLI

Usage:
  modhostctl import <module.zip> [--overrides file.yaml] [--update] [--force]
  modhostctl rollback <module_id> [--job <job_id>]
  modhostctl validate <module.zip> [--overrides file.yaml] [--update] [--force]
  modhostctl pack <module_dir> [--out module.zip] [--prefix id]
  modhostctl modules list
  modhostctl history [--module <module_id>]
  modhostctl menu list [--enabled]
  modhostctl menu add --label <label> [--path /p] [--icon i] [--parent id] [--order n]
  modhostctl menu delete <item_id>
  modhostctl version

Global flags:
  --user   Identity recorded on jobs (default from MODHOST_USER)

Configuration is read from MODHOST_* environment variables.
`)
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func check(err error) {
	if err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
