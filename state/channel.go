//
// Tencent is pleased to support the open source community by making trpc-graph-state available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package state

import (
	"fmt"
	"sync"
)

// Behavior selects how a channel merges incoming updates. The set is
// closed: anything beyond the built-in behaviors goes through
// BehaviorCustom with a caller-supplied reducer.
type Behavior int

const (
	// BehaviorLastValue keeps only the most recent update.
	BehaviorLastValue Behavior = iota
	// BehaviorAppend accumulates updates into an ordered slice.
	BehaviorAppend
	// BehaviorMessages maintains an identity-keyed message sequence with
	// upsert-in-place and tombstone deletion.
	BehaviorMessages
	// BehaviorCustom delegates merging to a caller-supplied reducer.
	BehaviorCustom
)

// Channel is a named state partition holding a merged value and its own
// version counter.
type Channel struct {
	mu       sync.Mutex
	name     string
	behavior Behavior
	reducer  Reducer
	domain   VersionDomain
	value    any
	version  any
	updated  bool
}

func newChannel(name string, behavior Behavior, reducer Reducer, domain VersionDomain) *Channel {
	if reducer == nil {
		switch behavior {
		case BehaviorAppend:
			reducer = AppendReducer
		case BehaviorMessages:
			reducer = MessageReducer
		default:
			reducer = DefaultReducer
		}
	}
	return &Channel{
		name:     name,
		behavior: behavior,
		reducer:  reducer,
		domain:   domain,
	}
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Behavior returns the channel's merge behavior.
func (c *Channel) Behavior() Behavior { return c.behavior }

// Update folds the updates into the channel value in the given order and
// advances the version once. An empty batch is a no-op and leaves the
// version untouched; a reducer failure leaves both value and version
// untouched.
func (c *Channel) Update(updates []any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(updates) == 0 {
		return false, nil
	}
	next := c.value
	var err error
	for _, update := range updates {
		next, err = c.reducer(next, update)
		if err != nil {
			return false, fmt.Errorf("channel %s: %w", c.name, err)
		}
	}
	if err := c.commitLocked(next); err != nil {
		return false, err
	}
	return true, nil
}

// Reduce runs the channel's reducer against an arbitrary current value
// without touching the channel. The step applier stages its folds with it.
func (c *Channel) Reduce(current, update any) (any, error) {
	return c.reducer(current, update)
}

// Get returns the current merged value.
func (c *Channel) Get() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Version returns the channel's version. The second result is false while
// the channel has never been updated; such channels stay absent from the
// version map.
func (c *Channel) Version() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.updated {
		return nil, false
	}
	return c.version, true
}

func (c *Channel) commit(next any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitLocked(next)
}

func (c *Channel) commitLocked(next any) error {
	version, err := c.domain.Next(c.version)
	if err != nil {
		return fmt.Errorf("channel %s: %w", c.name, err)
	}
	c.value = next
	c.version = version
	c.updated = true
	return nil
}

// restore installs a persisted value and version when resuming, without
// advancing the counter.
func (c *Channel) restore(value, version any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.version = version
	c.updated = version != nil
}

// Manager owns all channels of one graph together with the graph-wide
// version domain.
type Manager struct {
	mu       sync.RWMutex
	domain   VersionDomain
	channels map[string]*Channel
}

// NewManager creates a channel manager whose channels all version in the
// given domain.
func NewManager(domain VersionDomain) *Manager {
	return &Manager{
		domain:   domain,
		channels: make(map[string]*Channel),
	}
}

// NewManagerFromSchema creates a manager with one channel per schema field.
// Fields without a reducer get last-value semantics.
func NewManagerFromSchema(schema *StateSchema, domain VersionDomain) *Manager {
	m := NewManager(domain)
	for _, name := range schema.FieldNames() {
		field, _ := schema.Field(name)
		if field.Reducer != nil {
			m.AddCustomChannel(name, field.Reducer)
		} else {
			m.AddChannel(name, BehaviorLastValue)
		}
	}
	return m
}

// Domain returns the version domain shared by all channels.
func (m *Manager) Domain() VersionDomain {
	return m.domain
}

// AddChannel adds a channel with one of the built-in behaviors.
func (m *Manager) AddChannel(name string, behavior Behavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = newChannel(name, behavior, nil, m.domain)
}

// AddCustomChannel adds a channel driven by a caller-supplied reducer.
func (m *Manager) AddCustomChannel(name string, reducer Reducer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = newChannel(name, BehaviorCustom, reducer, m.domain)
}

// Channel retrieves a channel by name.
func (m *Manager) Channel(name string) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// VersionMap snapshots the version of every channel updated at least once.
// It is only meaningful between steps, after every update of the previous
// step has been applied.
func (m *Manager) VersionMap() VersionMap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(VersionMap, len(m.channels))
	for name, channel := range m.channels {
		if version, ok := channel.Version(); ok {
			result[name] = version
		}
	}
	return result
}

// Values snapshots the current channel values keyed by channel name.
func (m *Manager) Values() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(State, len(m.channels))
	for name, channel := range m.channels {
		result[name] = channel.Get()
	}
	return result
}

// Restore installs persisted channel values and versions, e.g. when
// resuming from a checkpoint. Channels absent from versions are left
// untouched.
func (m *Manager) Restore(values State, versions VersionMap) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, version := range versions {
		channel, ok := m.channels[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
		}
		channel.restore(values[name], version)
	}
	return nil
}
