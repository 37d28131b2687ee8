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
	"strings"

	"github.com/google/uuid"
)

// TaskContext is the execution context a scheduler supplies for one node
// invocation within a step.
type TaskContext struct {
	// Step is the zero-based step index.
	Step int
	// Node is the ID of the node producing the writes.
	Node string
	// Triggers are the channel names whose updates caused this task to run,
	// in the order the scheduler observed them.
	Triggers []string
	// TaskIndex orders concurrent tasks within one step.
	TaskIndex int
	// Extra carries scheduler-specific data the engine ignores.
	Extra map[string]any
}

// StepMetadata is the deterministic projection of a task context attached
// to every update. Field order is significant: downstream consumers hash
// and display it as step, node, triggers, task_index.
type StepMetadata struct {
	Step      int      `json:"step"`
	Node      string   `json:"node"`
	Triggers  []string `json:"triggers"`
	TaskIndex int      `json:"task_index"`
}

// ExtractStepMetadata projects the trace-relevant fields out of a task
// context. It is pure and total: identical contexts yield identical
// metadata, and the trigger order is preserved as given.
func ExtractStepMetadata(tc TaskContext) StepMetadata {
	triggers := make([]string, len(tc.Triggers))
	copy(triggers, tc.Triggers)
	return StepMetadata{
		Step:      tc.Step,
		Node:      tc.Node,
		Triggers:  triggers,
		TaskIndex: tc.TaskIndex,
	}
}

// CanonicalKey renders the metadata as a stable identity and ordering key
// in field order.
func (m StepMetadata) CanonicalKey() string {
	return fmt.Sprintf("%d|%s|%s|%d", m.Step, m.Node, strings.Join(m.Triggers, ","), m.TaskIndex)
}

// EntryID derives a deterministic identity for the i-th sequence entry
// produced by this task, so resumed runs mint the same IDs.
func (m StepMetadata) EntryID(i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s|%d", m.CanonicalKey(), i)).String()
}
