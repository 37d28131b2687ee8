//
// Tencent is pleased to support the open source community by making trpc-graph-state available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-state is licensed under the Apache License Version 2.0.
//
//

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelVersionMonotonic(t *testing.T) {
	m := NewManager(DomainNumeric)
	m.AddChannel("counter", BehaviorLastValue)
	ch, ok := m.Channel("counter")
	require.True(t, ok)

	_, initialized := ch.Version()
	require.False(t, initialized)

	var prev any
	for i := 0; i < 10; i++ {
		applied, err := ch.Update([]any{i})
		require.NoError(t, err)
		require.True(t, applied)

		version, ok := ch.Version()
		require.True(t, ok)
		if prev != nil {
			cmp, err := compareVersions(version, prev)
			require.NoError(t, err)
			require.Equal(t, 1, cmp)
		}
		prev = version
	}
	assert.Equal(t, 9, ch.Get())
}

func TestChannelEmptyUpdateKeepsVersion(t *testing.T) {
	m := NewManager(DomainNumeric)
	m.AddChannel("counter", BehaviorLastValue)
	ch, _ := m.Channel("counter")

	applied, err := ch.Update([]any{1})
	require.NoError(t, err)
	require.True(t, applied)
	before, _ := ch.Version()

	applied, err = ch.Update(nil)
	require.NoError(t, err)
	require.False(t, applied)
	after, _ := ch.Version()
	assert.Equal(t, before, after)
}

func TestChannelReducerErrorLeavesChannelUntouched(t *testing.T) {
	m := NewManager(DomainNumeric)
	m.AddChannel("messages", BehaviorMessages)
	ch, _ := m.Channel("messages")

	_, err := ch.Update([]any{RemoveMessage{ID: "missing"}})
	require.ErrorIs(t, err, ErrMessageNotFound)

	_, initialized := ch.Version()
	assert.False(t, initialized)
	assert.Nil(t, ch.Get())
}

func TestChannelAppendBehavior(t *testing.T) {
	m := NewManager(DomainNumeric)
	m.AddChannel("events", BehaviorAppend)
	ch, _ := m.Channel("events")

	_, err := ch.Update([]any{"a", "b"})
	require.NoError(t, err)
	_, err = ch.Update([]any{"c"})
	require.NoError(t, err)

	assert.Equal(t, []any{"a", "b", "c"}, ch.Get())
	version, _ := ch.Version()
	assert.Equal(t, int64(2), version)
}

func TestManagerVersionMapOmitsUntouchedChannels(t *testing.T) {
	m := NewManager(DomainNumeric)
	m.AddChannel("a", BehaviorLastValue)
	m.AddChannel("b", BehaviorLastValue)

	ch, _ := m.Channel("a")
	_, err := ch.Update([]any{"x"})
	require.NoError(t, err)

	vm := m.VersionMap()
	assert.Equal(t, VersionMap{"a": int64(1)}, vm)
	_, ok := vm["b"]
	assert.False(t, ok)
}

func TestManagerLexicographicDomain(t *testing.T) {
	m := NewManager(DomainLexicographic)
	m.AddChannel("a", BehaviorLastValue)
	ch, _ := m.Channel("a")

	_, err := ch.Update([]any{1})
	require.NoError(t, err)
	_, err = ch.Update([]any{2})
	require.NoError(t, err)

	vm := m.VersionMap()
	version, ok := vm["a"].(string)
	require.True(t, ok)
	null := DomainLexicographic.Null().(string)
	assert.Greater(t, version, null)
}

func TestManagerFromSchema(t *testing.T) {
	schema := MessagesStateSchema()
	m := NewManagerFromSchema(schema, DomainNumeric)

	ch, ok := m.Channel(StateKeyMessages)
	require.True(t, ok)

	_, err := ch.Update([]any{NewUserMessage("hi")})
	require.NoError(t, err)
	msgs, ok := ch.Get().([]Message)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.NotEmpty(t, msgs[0].ID)
}

func TestManagerRestore(t *testing.T) {
	m := NewManager(DomainNumeric)
	m.AddChannel("a", BehaviorLastValue)
	m.AddChannel("b", BehaviorLastValue)

	err := m.Restore(State{"a": "resumed"}, VersionMap{"a": int64(7)})
	require.NoError(t, err)

	ch, _ := m.Channel("a")
	assert.Equal(t, "resumed", ch.Get())
	assert.Equal(t, VersionMap{"a": int64(7)}, m.VersionMap())

	// Next update continues past the restored version.
	_, err = ch.Update([]any{"next"})
	require.NoError(t, err)
	version, _ := ch.Version()
	assert.Equal(t, int64(8), version)

	err = m.Restore(State{}, VersionMap{"missing": int64(1)})
	require.ErrorIs(t, err, ErrChannelNotFound)
}
