// Package menu stores the host application's navigation tree.
package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cordum/modhost/core/infra/docstore"
	"github.com/cordum/modhost/core/modules/manifest"
)

var (
	ErrNotFound    = errors.New("menu item not found")
	ErrDuplicateID = errors.New("duplicate menu item id")
	ErrInvalidItem = errors.New("invalid menu item")
)

// ModulesParentID is the seeded item installed modules are listed under.
const ModulesParentID = "menu_modules"

const moduleItemPrefix = "menu_module_"

// Item is one navigation entry. ParentID links it to its parent item.
type Item struct {
	ID             string   `json:"id"`
	Label          string   `json:"label"`
	Path           string   `json:"path,omitempty"`
	Icon           string   `json:"icon,omitempty"`
	Order          *int     `json:"order,omitempty"`
	ParentID       string   `json:"parentId,omitempty"`
	PermissionsAny []string `json:"permissionsAny,omitempty"`
	RolesAny       []string `json:"rolesAny,omitempty"`
	ModuleID       string   `json:"moduleId,omitempty"`
	IsEnabled      *bool    `json:"isEnabled,omitempty"`
}

// Enabled treats an unset flag as enabled.
func (i Item) Enabled() bool { return i.IsEnabled == nil || *i.IsEnabled }

func intPtr(v int) *int { return &v }

// DefaultItems is the tree seeded into an empty menu document.
func DefaultItems() []Item {
	return []Item{
		{ID: "menu_dashboard", Label: "Dashboard", Path: "/", Icon: "layout-dashboard", Order: intPtr(1)},
		{ID: "menu_leads", Label: "Leads", Path: "/leads", Icon: "users", Order: intPtr(2)},
		{ID: "menu_leads_inbox", Label: "Inbox", Path: "/leads/inbox", Icon: "inbox", Order: intPtr(1), ParentID: "menu_leads"},
		{ID: ModulesParentID, Label: "Modules", Path: "/modules", Icon: "puzzle", Order: intPtr(3), PermissionsAny: []string{"modules.manage"}},
		{ID: "menu_settings", Label: "Settings", Path: "/settings", Icon: "settings", Order: intPtr(4), RolesAny: []string{"admin"}},
	}
}

// Store reads and writes the menu document as a whole.
type Store struct {
	docs    docstore.Store
	docName string
}

func NewStore(docs docstore.Store, docName string) *Store {
	return &Store{docs: docs, docName: docName}
}

func (s *Store) load(ctx context.Context) ([]Item, error) {
	var items []Item
	if _, err := docstore.ReadJSON(ctx, s.docs, s.docName, &items); err != nil {
		return nil, fmt.Errorf("load menu: %w", err)
	}
	return items, nil
}

func (s *Store) save(ctx context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	if err := docstore.WriteJSON(ctx, s.docs, s.docName, items); err != nil {
		return fmt.Errorf("save menu: %w", err)
	}
	return nil
}

// List returns every item. An empty document is seeded with DefaultItems.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return items, nil
	}
	items = DefaultItems()
	if err := s.save(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get returns the item with the given id.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	items, err := s.List(ctx)
	if err != nil {
		return Item{}, err
	}
	if idx := indexOf(items, id); idx >= 0 {
		return items[idx], nil
	}
	return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Create adds item. A missing id is generated.
func (s *Store) Create(ctx context.Context, item Item) (Item, error) {
	if strings.TrimSpace(item.Label) == "" {
		return Item{}, fmt.Errorf("%w: label required", ErrInvalidItem)
	}
	items, err := s.List(ctx)
	if err != nil {
		return Item{}, err
	}
	if item.ID == "" {
		item.ID = "menu_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if indexOf(items, item.ID) >= 0 {
		return Item{}, fmt.Errorf("%w: %s", ErrDuplicateID, item.ID)
	}
	if item.ParentID == item.ID {
		return Item{}, fmt.Errorf("%w: item cannot be its own parent", ErrInvalidItem)
	}
	if err := s.save(ctx, append(items, item)); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Update replaces the item with item.ID.
func (s *Store) Update(ctx context.Context, item Item) (Item, error) {
	if strings.TrimSpace(item.Label) == "" {
		return Item{}, fmt.Errorf("%w: label required", ErrInvalidItem)
	}
	if item.ParentID != "" && item.ParentID == item.ID {
		return Item{}, fmt.Errorf("%w: item cannot be its own parent", ErrInvalidItem)
	}
	items, err := s.List(ctx)
	if err != nil {
		return Item{}, err
	}
	idx := indexOf(items, item.ID)
	if idx < 0 {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, item.ID)
	}
	items[idx] = item
	if err := s.save(ctx, items); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Delete removes the item and its direct children. Deeper descendants are
// left in place. It returns the removed ids.
func (s *Store) Delete(ctx context.Context, id string) ([]string, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if indexOf(items, id) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	kept := make([]Item, 0, len(items))
	removed := []string{}
	for _, item := range items {
		if item.ID == id || item.ParentID == id {
			removed = append(removed, item.ID)
			continue
		}
		kept = append(kept, item)
	}
	if err := s.save(ctx, kept); err != nil {
		return nil, err
	}
	return removed, nil
}

// FindByModule returns the items linked to moduleID.
func (s *Store) FindByModule(ctx context.Context, moduleID string) ([]Item, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []Item{}
	for _, item := range items {
		if item.ModuleID == moduleID {
			out = append(out, item)
		}
	}
	return out, nil
}

// ModuleItemID is the id of the item UpsertModuleItem maintains for moduleID.
func ModuleItemID(moduleID string) string { return moduleItemPrefix + moduleID }

// UpsertModuleItem creates or refreshes the navigation entry of an installed
// module from its manifest. Fields an operator set on an existing item
// (order, parent, roles, enabled flag) are kept.
func (s *Store) UpsertModuleItem(ctx context.Context, m manifest.Manifest) (Item, error) {
	items, err := s.List(ctx)
	if err != nil {
		return Item{}, err
	}
	id := ModuleItemID(m.ID)
	label := m.UI.MenuLabel
	if label == "" {
		label = m.Name
	}
	item := Item{ID: id, ParentID: ModulesParentID}
	idx := indexOf(items, id)
	if idx >= 0 {
		item = items[idx]
	}
	item.Label = label
	item.Path = m.UI.MenuPath
	item.Icon = m.UI.Icon
	item.ModuleID = m.ID
	item.PermissionsAny = append([]string(nil), m.Permissions...)
	if idx >= 0 {
		items[idx] = item
	} else {
		items = append(items, item)
	}
	if err := s.save(ctx, items); err != nil {
		return Item{}, err
	}
	return item, nil
}

func indexOf(items []Item, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
