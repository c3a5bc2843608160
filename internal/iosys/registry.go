// Package iosys implements the I/O source registry: a per-API-name
// table of discovered capture/sink entries, each owning its own event
// list so a caller can subscribe to ON_CHANGE/ON_ERROR/ON_EOS without
// routing through the main context's root list.
package iosys

import (
	"context"
	"sync"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
)

// API is a discovery/sink back-end: filewatch (capture-adjacent source
// discovery) and azureblob (cloud sink) both implement it.
type API interface {
	// Name is the API identifier entries register under (e.g.
	// "filewatch", "azureblob").
	Name() string
	// InitSys performs one-time, process-wide setup.
	InitSys(ctx context.Context) error
	// InitIO starts this API's discovery/connection loop, populating the
	// registry with entries as it finds them.
	InitIO(ctx context.Context, reg *Registry) error
}

// apiState holds everything the registry tracks for one registered API
// name: its entries plus an event list a caller can subscribe to for
// API-wide notifications (e.g. "discovery loop restarted").
type apiState struct {
	mu      sync.RWMutex
	entries map[uint32]*class.Handle
	events  *events.List
	api     API
}

// Registry is the process-wide I/O source table, one per MainContext.
type Registry struct {
	mu   sync.RWMutex
	apis map[string]*apiState
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{apis: make(map[string]*apiState)}
}

// Register installs api under its own Name(), allocating its apiState.
// Calling InitSys/InitIO is the caller's responsibility (MainContext.Init
// drives this so registration and startup stay separately testable).
func (r *Registry) Register(api API) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner := class.New(api, api.Name(), class.Interface, nil)
	r.apis[api.Name()] = &apiState{
		entries: make(map[uint32]*class.Handle),
		events:  events.NewList(owner),
		api:     api,
	}
}

// InitSys calls InitSys on every registered API.
func (r *Registry) InitSys(ctx context.Context) error {
	r.mu.RLock()
	states := make([]*apiState, 0, len(r.apis))
	for _, st := range r.apis {
		states = append(states, st)
	}
	r.mu.RUnlock()

	for _, st := range states {
		if err := st.api.InitSys(ctx); err != nil {
			return err
		}
	}
	return nil
}

// InitIO starts every registered API's discovery loop.
func (r *Registry) InitIO(ctx context.Context) error {
	r.mu.RLock()
	states := make([]*apiState, 0, len(r.apis))
	for _, st := range r.apis {
		states = append(states, st)
	}
	r.mu.RUnlock()

	for _, st := range states {
		if err := st.api.InitIO(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEntryFor inserts h (an *Entry handle) under apiName/identifier,
// called by an API backend as it discovers a new device/connection.
func (r *Registry) RegisterEntryFor(apiName string, identifier uint32, h *class.Handle) error {
	r.mu.RLock()
	st, ok := r.apis[apiName]
	r.mu.RUnlock()
	if !ok {
		return errors.NewNotFoundError("iosys.add_entry." + apiName)
	}
	st.mu.Lock()
	st.entries[identifier] = h
	st.mu.Unlock()
	return nil
}

// UnregisterEntryFor drops and unrefs the entry at apiName/identifier,
// called by an API backend on device removal (e.g. a watched directory
// vanishing).
func (r *Registry) UnregisterEntryFor(apiName string, identifier uint32) {
	r.mu.RLock()
	st, ok := r.apis[apiName]
	r.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	h, ok := st.entries[identifier]
	delete(st.entries, identifier)
	st.mu.Unlock()
	if ok {
		h.Unref()
	}
}

// RefEntry returns the entry registered under apiName/identifier with its
// refcount bumped, or nil if absent. identifier is the CRC32 of the
// platform-specific device name (Entry.Identifier).
func (r *Registry) RefEntry(apiName string, identifier uint32) *class.Handle {
	r.mu.RLock()
	st, ok := r.apis[apiName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	st.mu.RLock()
	h, ok := st.entries[identifier]
	st.mu.RUnlock()
	if !ok {
		return nil
	}
	return h.Ref()
}

// Events returns apiName's own event list (API-wide notifications, not
// per-entry), or nil if apiName was never registered.
func (r *Registry) Events(apiName string) *events.List {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.apis[apiName]
	if !ok {
		return nil
	}
	return st.events
}

// Entries returns a snapshot of every currently registered entry handle
// for apiName, each Ref'd for the caller.
func (r *Registry) Entries(apiName string) []*class.Handle {
	r.mu.RLock()
	st, ok := r.apis[apiName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*class.Handle, 0, len(st.entries))
	for _, h := range st.entries {
		out = append(out, h.Ref())
	}
	return out
}
