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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStepMetadataDeterministic(t *testing.T) {
	tc := TaskContext{
		Step:      3,
		Node:      "planner",
		Triggers:  []string{"messages", "user_input"},
		TaskIndex: 1,
		Extra:     map[string]any{"ignored": true},
	}
	first := ExtractStepMetadata(tc)
	second := ExtractStepMetadata(tc)
	require.Equal(t, first, second)
	assert.Equal(t, 3, first.Step)
	assert.Equal(t, "planner", first.Node)
	assert.Equal(t, []string{"messages", "user_input"}, first.Triggers)
	assert.Equal(t, 1, first.TaskIndex)
}

func TestExtractStepMetadataCopiesTriggers(t *testing.T) {
	triggers := []string{"a", "b"}
	md := ExtractStepMetadata(TaskContext{Triggers: triggers})
	triggers[0] = "mutated"
	assert.Equal(t, "a", md.Triggers[0])
}

func TestStepMetadataFieldOrder(t *testing.T) {
	md := StepMetadata{Step: 1, Node: "n", Triggers: []string{"t"}, TaskIndex: 2}
	data, err := json.Marshal(md)
	require.NoError(t, err)
	// Downstream consumers hash the serialized form; field order is fixed.
	assert.Equal(t, `{"step":1,"node":"n","triggers":["t"],"task_index":2}`, string(data))
}

func TestStepMetadataCanonicalKey(t *testing.T) {
	md := StepMetadata{Step: 4, Node: "writer", Triggers: []string{"a", "b"}, TaskIndex: 0}
	assert.Equal(t, "4|writer|a,b|0", md.CanonicalKey())
}

func TestStepMetadataEntryIDStable(t *testing.T) {
	md := StepMetadata{Step: 2, Node: "llm", Triggers: []string{"messages"}, TaskIndex: 0}
	first := md.EntryID(0)
	second := md.EntryID(0)
	require.Equal(t, first, second)
	require.NotEqual(t, first, md.EntryID(1))

	other := md
	other.TaskIndex = 1
	require.NotEqual(t, first, other.EntryID(0))
}
