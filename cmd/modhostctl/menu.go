package main

import (
	"context"
	"os"

	"github.com/cordum/modhost/core/modules/menu"
)

func runMenuCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	ctx := context.Background()
	switch args[0] {
	case "list":
		fs := newFlagSet("menu list")
		enabledOnly := fs.Bool("enabled", false, "hide disabled items")
		fs.ParseArgs(args[1:])
		h := openHost()
		defer h.Close()
		items, err := h.Menu.List(ctx)
		check(err)
		if *enabledOnly {
			items = enabledItems(items)
		}
		printJSON(items)
	case "add":
		fs := newFlagSet("menu add")
		label := fs.String("label", "", "menu label")
		path := fs.String("path", "", "route path")
		icon := fs.String("icon", "", "icon name")
		parent := fs.String("parent", "", "parent item id")
		order := fs.Int("order", -1, "sort order")
		fs.ParseArgs(args[1:])
		if *label == "" {
			fail("--label required")
		}
		item := menu.Item{Label: *label, Path: *path, Icon: *icon, ParentID: *parent}
		if *order >= 0 {
			item.Order = order
		}
		h := openHost()
		defer h.Close()
		created, err := h.Menu.Create(ctx, item)
		check(err)
		printJSON(created)
	case "delete":
		fs := newFlagSet("menu delete")
		fs.ParseArgs(args[1:])
		if fs.NArg() < 1 {
			fail("usage: menu delete <item_id>")
		}
		h := openHost()
		defer h.Close()
		removed, err := h.Menu.Delete(ctx, fs.Arg(0))
		check(err)
		printJSON(removed)
	default:
		usage()
		os.Exit(1)
	}
}

// enabledItems drops disabled items and the children of disabled items.
func enabledItems(items []menu.Item) []menu.Item {
	hidden := map[string]bool{}
	for _, item := range items {
		if !item.Enabled() {
			hidden[item.ID] = true
		}
	}
	out := make([]menu.Item, 0, len(items))
	for _, item := range items {
		if hidden[item.ID] || hidden[item.ParentID] {
			continue
		}
		out = append(out, item)
	}
	return out
}
