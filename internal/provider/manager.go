// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultModelTTL is how long a cached model list stays fresh.
const DefaultModelTTL = 10 * time.Minute

// Instance is the configuration for one provider endpoint.
type Instance struct {
	// ID uniquely identifies the instance in config and conversations.
	ID string

	// Name is the human-readable label shown in the UI.
	Name string

	// BaseURL is the API root (e.g. "https://openrouter.ai/api/v1").
	BaseURL string

	// APIKey authenticates requests. Empty means not configured.
	APIKey string

	// ModelTTL overrides DefaultModelTTL when positive.
	ModelTTL time.Duration
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager is the provider-instance registry. It caches one Client per
// instance and a TTL-bounded model list per instance. Upserting or removing
// an instance invalidates both caches for that ID, so configuration edits
// take effect on the next request.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]Instance
	clients   map[string]*Client
	models    map[string]*modelCache
}

type modelCache struct {
	models    []ModelInfo
	fetchedAt time.Time
	ttl       time.Duration
}

func (c *modelCache) fresh(now time.Time) bool {
	return now.Sub(c.fetchedAt) < c.ttl
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		instances: make(map[string]Instance),
		clients:   make(map[string]*Client),
		models:    make(map[string]*modelCache),
	}
}

// Upsert registers or replaces a provider instance. Any cached client or
// model list for the ID is discarded.
func (m *Manager) Upsert(inst Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.ID] = inst
	delete(m.clients, inst.ID)
	delete(m.models, inst.ID)
}

// Remove unregisters a provider instance and drops its caches.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, id)
	delete(m.clients, id)
	delete(m.models, id)
}

// Instances returns a snapshot of all registered instances.
func (m *Manager) Instances() []Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	return out
}

// Instance returns the configuration for an instance ID.
func (m *Manager) Instance(id string) (Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	return inst, nil
}

// Client returns the cached client for an instance, creating it on first
// use.
func (m *Manager) Client(id string) (*Client, error) {
	m.mu.RLock()
	if client, ok := m.clients[id]; ok {
		m.mu.RUnlock()
		return client, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.clients[id]; ok {
		return client, nil
	}
	inst, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	client := NewClient(inst.BaseURL, inst.APIKey)
	m.clients[id] = client
	return client, nil
}

// Models returns the model list for an instance, served from cache while
// fresh. A fetch failure with a stale cache present returns the stale list.
func (m *Manager) Models(ctx context.Context, id string) ([]ModelInfo, error) {
	m.mu.RLock()
	cached, ok := m.models[id]
	m.mu.RUnlock()
	if ok && cached.fresh(time.Now()) {
		return cached.models, nil
	}

	client, err := m.Client(id)
	if err != nil {
		return nil, err
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		if ok {
			return cached.models, nil
		}
		return nil, err
	}

	inst, instErr := m.Instance(id)
	ttl := DefaultModelTTL
	if instErr == nil && inst.ModelTTL > 0 {
		ttl = inst.ModelTTL
	}

	m.mu.Lock()
	m.models[id] = &modelCache{models: models, fetchedAt: time.Now(), ttl: ttl}
	m.mu.Unlock()

	return models, nil
}

// PricingFor looks up a model's pricing on an instance. Returns zero
// pricing when the model or its pricing is unknown.
func (m *Manager) PricingFor(ctx context.Context, id, modelID string) Pricing {
	models, err := m.Models(ctx, id)
	if err != nil {
		return Pricing{}
	}
	for _, info := range models {
		if info.ID == modelID {
			return info.Pricing
		}
	}
	return Pricing{}
}
