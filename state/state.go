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

// Package state implements the versioned-channel state engine used by
// graph-based execution runtimes. State is partitioned into named channels,
// each with its own reducer and version counter, so that a scheduler can
// merge concurrent per-step node outputs deterministically and detect which
// partitions changed since a prior snapshot.
package state

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// State represents the state that flows through the graph.
type State map[string]any

// Clone creates a shallow copy of the state.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// GetStateValue retrieves the value stored under key when it has type T.
func GetStateValue[T any](s State, key string) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	raw, ok := s[key]
	if !ok {
		return zero, false
	}
	val, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return val, true
}

// Reducer merges a channel's current value with one incoming update and
// returns the next value. Reducers must be pure: they never mutate current
// and identical inputs yield identical outputs.
type Reducer func(current, update any) (any, error)

// DefaultReducer replaces the current value with the update (last write wins).
func DefaultReducer(current, update any) (any, error) {
	return update, nil
}

// AppendReducer accumulates updates into an ordered []any. Slice updates are
// flattened so a node may contribute several values at once.
func AppendReducer(current, update any) (any, error) {
	var base []any
	if current != nil {
		cur, ok := current.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: append channel holds %T, not []any", ErrMalformedUpdate, current)
		}
		base = cur
	}
	out := make([]any, len(base), len(base)+1)
	copy(out, base)
	switch u := update.(type) {
	case nil:
		return out, nil
	case []any:
		return append(out, u...), nil
	default:
		return append(out, update), nil
	}
}

// MergeReducer merges string-keyed map updates into the current map.
func MergeReducer(current, update any) (any, error) {
	out := make(map[string]any)
	if current != nil {
		cur, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: merge channel holds %T, not map[string]any", ErrMalformedUpdate, current)
		}
		for k, v := range cur {
			out[k] = v
		}
	}
	if update == nil {
		return out, nil
	}
	upd, ok := update.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: merge channel update is %T, not map[string]any", ErrMalformedUpdate, update)
	}
	for k, v := range upd {
		out[k] = v
	}
	return out, nil
}

// StringSliceReducer appends string updates into a []string.
func StringSliceReducer(current, update any) (any, error) {
	var base []string
	if current != nil {
		cur, ok := current.([]string)
		if !ok {
			return nil, fmt.Errorf("%w: string slice channel holds %T", ErrMalformedUpdate, current)
		}
		base = cur
	}
	out := make([]string, len(base))
	copy(out, base)
	switch u := update.(type) {
	case nil:
		return out, nil
	case string:
		return append(out, u), nil
	case []string:
		return append(out, u...), nil
	default:
		return nil, fmt.Errorf("%w: string slice channel update is %T", ErrMalformedUpdate, update)
	}
}

// StateField describes one channel-backed field of the graph state.
type StateField struct {
	// Type is the expected Go type of the field value.
	Type reflect.Type
	// Reducer merges updates into the field. Nil means last write wins.
	Reducer Reducer
	// Default produces the initial value for the field, if any.
	Default func() any
}

// StateSchema declares the channels of a graph and how each one merges
// updates.
type StateSchema struct {
	mu     sync.RWMutex
	fields map[string]StateField
}

// NewStateSchema creates an empty state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{
		fields: make(map[string]StateField),
	}
}

// AddField adds a field to the schema and returns the schema for chaining.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[name] = field
	return s
}

// Field returns the schema field with the given name.
func (s *StateSchema) Field(name string) (StateField, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	field, ok := s.fields[name]
	return field, ok
}

// FieldNames returns the declared field names in sorted order.
func (s *StateSchema) FieldNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyDefaults fills missing fields of the state with their declared
// defaults and returns the state.
func (s *StateSchema) ApplyDefaults(st State) State {
	if st == nil {
		st = make(State)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, field := range s.fields {
		if _, ok := st[name]; ok {
			continue
		}
		if field.Default != nil {
			st[name] = field.Default()
		}
	}
	return st
}

// MessagesStateSchema creates a state schema optimized for message-based
// workflows.
func MessagesStateSchema() *StateSchema {
	schema := NewStateSchema()
	schema.AddField(StateKeyMessages, StateField{
		Type:    reflect.TypeOf([]Message{}),
		Reducer: MessageReducer,
		Default: func() any { return []Message{} },
	})
	schema.AddField(StateKeyUserInput, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyLastResponse, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyMetadata, StateField{
		Type:    reflect.TypeOf(map[string]any{}),
		Reducer: MergeReducer,
		Default: func() any { return make(map[string]any) },
	})
	return schema
}
