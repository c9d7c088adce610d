// Package cleardb is the selection-and-confirm workflow in front of the destructive
// database actions: list collections, pick some, then confirm by typing a phrase.
package cleardb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/attendly/client"
	"github.com/trezcool/attendly/core/dbadmin"
)

var (
	ErrConfirmMismatch  = errors.New("confirmation does not match")
	ErrNothingSelected  = errors.New("select at least one collection")
	ErrUnknownAction    = errors.New("unknown action")
	ErrNotLoaded        = errors.New("collections are not loaded")
	ErrUnknownSelection = errors.New("unknown collection")
)

// Backend runs the actions; both *client.Client and dbadmin.Service implement it.
type Backend interface {
	Collections(ctx context.Context) (dbadmin.Overview, error)
	ClearDocuments(ctx context.Context, req dbadmin.Request) (dbadmin.Result, error)
	DropCollections(ctx context.Context, req dbadmin.Request) (dbadmin.Result, error)
	DropDatabase(ctx context.Context, confirm string) (dbadmin.Result, error)
}

var (
	_ Backend = (*client.Client)(nil)
	_ Backend = dbadmin.Service(nil)
)

type Panel struct {
	backend Backend

	mu       sync.Mutex
	overview dbadmin.Overview
	loaded   bool
	filter   string
	selected map[string]bool
}

func New(backend Backend) *Panel {
	return &Panel{backend: backend, selected: make(map[string]bool)}
}

// Load fetches the collections; selected collections that are gone are unselected.
func (p *Panel) Load(ctx context.Context) error {
	overview, err := p.backend.Collections(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overview, p.loaded = overview, true
	for name := range p.selected {
		if !p.listed(name) {
			delete(p.selected, name)
		}
	}
	return nil
}

func (p *Panel) listed(name string) bool {
	for _, c := range p.overview.Collections {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (p *Panel) Database() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overview.Database
}

// SetFilter narrows the visible collections to the names containing text, ignoring case.
func (p *Panel) SetFilter(text string) {
	p.mu.Lock()
	p.filter = strings.ToLower(strings.TrimSpace(text))
	p.mu.Unlock()
}

func (p *Panel) visible() []dbadmin.Collection {
	cols := make([]dbadmin.Collection, 0, len(p.overview.Collections))
	for _, c := range p.overview.Collections {
		if p.filter == "" || strings.Contains(strings.ToLower(c.Name), p.filter) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Visible returns the collections matching the filter.
func (p *Panel) Visible() []dbadmin.Collection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible()
}

// Toggle flips the selection of a listed collection.
func (p *Panel) Toggle(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.listed(name) {
		return errors.Wrapf(ErrUnknownSelection, "%q", name)
	}
	if p.selected[name] {
		delete(p.selected, name)
	} else {
		p.selected[name] = true
	}
	return nil
}

func (p *Panel) IsSelected(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected[name]
}

// AllFilteredSelected reports whether every visible collection is selected.
func (p *Panel) AllFilteredSelected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	vis := p.visible()
	for _, c := range vis {
		if !p.selected[c.Name] {
			return false
		}
	}
	return len(vis) > 0
}

// SetAllFiltered selects, or unselects, the visible collections only; the selection
// of the collections hidden by the filter is left as is.
func (p *Panel) SetAllFiltered(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.visible() {
		if on {
			p.selected[c.Name] = true
		} else {
			delete(p.selected, c.Name)
		}
	}
}

// ToggleAllFiltered is the "select all" checkbox.
func (p *Panel) ToggleAllFiltered() {
	p.SetAllFiltered(!p.AllFilteredSelected())
}

// Selected returns the selected collections, sorted.
func (p *Panel) Selected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.selected))
	for name := range p.selected {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfirmPhrase is what the operator must type to run action.
func (p *Panel) ConfirmPhrase(action dbadmin.Action) (string, error) {
	switch action {
	case dbadmin.ActionClear:
		return dbadmin.ConfirmClear, nil
	case dbadmin.ActionDrop:
		return dbadmin.ConfirmDrop, nil
	case dbadmin.ActionDropDB:
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.loaded {
			return "", ErrNotLoaded
		}
		return p.overview.Database, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// Execute runs action once typed matches its confirmation phrase; a mismatch sends nothing.
// A successful action clears the selection and reloads the collections.
func (p *Panel) Execute(ctx context.Context, action dbadmin.Action, typed string) (dbadmin.Result, error) {
	phrase, err := p.ConfirmPhrase(action)
	if err != nil {
		return dbadmin.Result{}, err
	}
	if typed != phrase {
		return dbadmin.Result{Action: action}, ErrConfirmMismatch
	}

	req := dbadmin.Request{Collections: p.Selected(), Confirm: typed}
	var res dbadmin.Result
	switch action {
	case dbadmin.ActionClear, dbadmin.ActionDrop:
		if len(req.Collections) == 0 {
			return dbadmin.Result{Action: action}, ErrNothingSelected
		}
		if action == dbadmin.ActionClear {
			res, err = p.backend.ClearDocuments(ctx, req)
		} else {
			res, err = p.backend.DropCollections(ctx, req)
		}
	case dbadmin.ActionDropDB:
		res, err = p.backend.DropDatabase(ctx, typed)
	}
	if err != nil {
		return res, err
	}

	p.mu.Lock()
	p.selected = make(map[string]bool)
	p.mu.Unlock()
	return res, p.Load(ctx)
}
