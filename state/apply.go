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
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-graph-state/log"
)

const instrumentationName = "trpc.group/trpc-go/trpc-graph-state/state"

// TaskWrites is the completed output of one node task within a step: the
// node's raw return value plus the metadata identifying where it came from.
type TaskWrites struct {
	Metadata StepMetadata
	Value    any
}

// Applier merges a step's completed task writes into the channel set under
// the bulk-synchronous contract: all tasks of a step finish before anything
// is applied, updates fold in task order, and a failing task contributes
// nothing to any channel or to the version map.
type Applier struct {
	manager        *Manager
	defaultChannel string
	pool           *ants.Pool
	tracer         trace.Tracer
}

type applierOptions struct {
	defaultChannel string
	parallelism    int
}

// ApplierOption configures an Applier.
type ApplierOption func(*applierOptions)

// WithDefaultChannel sets the channel receiving unkeyed task values.
// Defaults to the messages channel.
func WithDefaultChannel(name string) ApplierOption {
	return func(o *applierOptions) { o.defaultChannel = name }
}

// WithParallelism bounds the worker pool that folds independent channels
// concurrently. Zero or negative folds sequentially.
func WithParallelism(n int) ApplierOption {
	return func(o *applierOptions) { o.parallelism = n }
}

// NewApplier creates a step applier bound to the given channel manager.
func NewApplier(manager *Manager, opts ...ApplierOption) (*Applier, error) {
	options := applierOptions{defaultChannel: StateKeyMessages}
	for _, opt := range opts {
		opt(&options)
	}
	var pool *ants.Pool
	if options.parallelism > 0 {
		p, err := ants.NewPool(options.parallelism)
		if err != nil {
			return nil, fmt.Errorf("create worker pool: %w", err)
		}
		pool = p
	}
	return &Applier{
		manager:        manager,
		defaultChannel: options.defaultChannel,
		pool:           pool,
		tracer:         otel.Tracer(instrumentationName),
	}, nil
}

// Close releases the applier's worker pool.
func (a *Applier) Close() {
	if a.pool != nil {
		a.pool.Release()
	}
}

// channelUpdate is one task's payload for one channel, tagged with the
// originating task position so exclusion can be tracked.
type channelUpdate struct {
	task    int
	payload any
}

// foldResult is the staged outcome of folding one channel's updates.
type foldResult struct {
	value    any
	applied  bool
	failTask int
	err      error
}

// ApplyStep merges all task writes for one completed step and returns the
// version map observed after the step.
//
// Tasks fold in ascending task index. A task whose contribution fails on
// any channel — malformed value, unknown channel, reducer error — is
// excluded from every channel before anything commits, so a failed or
// cancelled node contributes nothing to the version map for the step. Each
// surviving channel's version advances exactly once. Per-task errors are
// joined into the returned error with step, node and channel attached; the
// returned version map is still valid for the tasks that succeeded.
func (a *Applier) ApplyStep(ctx context.Context, tasks []TaskWrites) (VersionMap, error) {
	_, span := a.tracer.Start(ctx, "state.apply_step")
	defer span.End()
	span.SetAttributes(attribute.Int("state.tasks", len(tasks)))
	if len(tasks) > 0 {
		span.SetAttributes(attribute.Int("state.step", tasks[0].Metadata.Step))
	}

	ordered := make([]TaskWrites, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Metadata.TaskIndex < ordered[j].Metadata.TaskIndex
	})

	var errs []error
	excluded := make(map[int]bool)

	updates, coerceErrs := a.coerceTasks(ordered, excluded)
	errs = append(errs, coerceErrs...)

	perChannel := make(map[string][]channelUpdate)
	for i, st := range updates {
		if excluded[i] {
			continue
		}
		for name, payload := range st {
			perChannel[name] = append(perChannel[name], channelUpdate{task: i, payload: payload})
		}
	}
	names := make([]string, 0, len(perChannel))
	for name := range perChannel {
		names = append(names, name)
	}
	sort.Strings(names)

	// Fold until no task newly fails. Every iteration either commits or
	// excludes at least one more task, so the loop is bounded by the task
	// count.
	for {
		results := a.foldChannels(names, perChannel, excluded)

		newlyFailed := false
		for idx, r := range results {
			if r.err == nil || excluded[r.failTask] {
				continue
			}
			excluded[r.failTask] = true
			newlyFailed = true
			md := ordered[r.failTask].Metadata
			errs = append(errs, &StepError{Step: md.Step, Node: md.Node, Channel: names[idx], Err: r.err})
			log.Warnf("dropping contribution of node %s at step %d: %v", md.Node, md.Step, r.err)
		}
		if newlyFailed {
			continue
		}

		for idx, r := range results {
			if !r.applied {
				continue
			}
			channel, _ := a.manager.Channel(names[idx])
			if err := channel.commit(r.value); err != nil {
				errs = append(errs, err)
			}
		}
		break
	}

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "step applied with dropped contributions")
	}
	return a.manager.VersionMap(), err
}

// coerceTasks normalizes every task value, validates its target channels
// and stamps deterministic identities onto ID-less messages. A task that
// fails a check is excluded wholesale.
func (a *Applier) coerceTasks(ordered []TaskWrites, excluded map[int]bool) ([]State, []error) {
	updates := make([]State, len(ordered))
	var errs []error
	for i, tw := range ordered {
		md := tw.Metadata
		st, err := CoerceUpdate(tw.Value, a.defaultChannel)
		if err != nil {
			excluded[i] = true
			errs = append(errs, &StepError{Step: md.Step, Node: md.Node, Err: err})
			continue
		}
		for name := range st {
			if _, ok := a.manager.Channel(name); !ok {
				excluded[i] = true
				errs = append(errs, &StepError{
					Step: md.Step, Node: md.Node, Channel: name,
					Err: fmt.Errorf("%w: %s", ErrChannelNotFound, name),
				})
				break
			}
		}
		if !excluded[i] {
			stampEntryIDs(md, st)
			updates[i] = st
		}
	}
	return updates, errs
}

// stampEntryIDs assigns metadata-derived identities to messages that arrive
// without one, numbering them in channel-name order so a replayed task
// mints the same IDs.
func stampEntryIDs(md StepMetadata, st State) {
	names := make([]string, 0, len(st))
	for name := range st {
		names = append(names, name)
	}
	sort.Strings(names)
	seq := 0
	for _, name := range names {
		st[name] = assignMessageIDs(st[name], func() string {
			id := md.EntryID(seq)
			seq++
			return id
		})
	}
}

// foldChannels stages every channel's fold against its current value.
// Channels are independent, so folds run on the worker pool when one is
// configured. Nothing commits here.
func (a *Applier) foldChannels(names []string, perChannel map[string][]channelUpdate, excluded map[int]bool) []foldResult {
	results := make([]foldResult, len(names))
	fold := func(idx int) {
		name := names[idx]
		channel, _ := a.manager.Channel(name)
		next := channel.Get()
		applied := false
		for _, cu := range perChannel[name] {
			if excluded[cu.task] {
				continue
			}
			value, err := channel.Reduce(next, cu.payload)
			if err != nil {
				results[idx] = foldResult{failTask: cu.task, err: err}
				return
			}
			next = value
			applied = true
		}
		results[idx] = foldResult{value: next, applied: applied, failTask: -1}
	}

	if a.pool == nil {
		for idx := range names {
			fold(idx)
		}
		return results
	}

	var wg sync.WaitGroup
	for idx := range names {
		idx := idx
		wg.Add(1)
		if err := a.pool.Submit(func() {
			defer wg.Done()
			fold(idx)
		}); err != nil {
			// Pool saturated or released; fold inline.
			fold(idx)
			wg.Done()
		}
	}
	wg.Wait()
	return results
}
