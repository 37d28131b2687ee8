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

	"github.com/google/uuid"
)

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of an identity-keyed sequence channel. ID is the
// stable identity used for in-place replacement and tombstone deletion;
// producers may leave it empty and have one assigned on insertion.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool message.
func NewToolMessage(content string) Message {
	return Message{Role: RoleTool, Content: content}
}

// MessageOp is a structural edit understood by MessageReducer.
type MessageOp interface {
	isMessageOp()
}

// AppendMessages upserts a batch of messages into the sequence.
type AppendMessages struct {
	Items []Message
}

// RemoveMessage is a tombstone deleting the entry with the given ID.
type RemoveMessage struct {
	ID string
}

// RemoveAllMessages clears the whole sequence.
type RemoveAllMessages struct{}

func (AppendMessages) isMessageOp()    {}
func (RemoveMessage) isMessageOp()     {}
func (RemoveAllMessages) isMessageOp() {}

// MessageReducer merges message updates into an identity-keyed sequence.
//
// Tombstones apply before upserts. An upsert whose ID matches an existing
// entry replaces it in place without moving it; new entries append in
// update order; entries without an ID get a fresh one. Deleting an unknown
// ID fails with ErrMessageNotFound rather than silently no-oping, so
// ordering bugs in producers that assume the deletion succeeded stay loud.
func MessageReducer(current, update any) (any, error) {
	base, err := messageSlice(current)
	if err != nil {
		return nil, err
	}
	removals, clearAll, upserts, err := splitMessageUpdate(update)
	if err != nil {
		return nil, err
	}

	var out []Message
	if !clearAll {
		out = make([]Message, len(base))
		copy(out, base)
	}
	for _, id := range removals {
		idx := indexByID(out, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: cannot delete message %q", ErrMessageNotFound, id)
		}
		out = append(out[:idx], out[idx+1:]...)
	}
	for _, msg := range upserts {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if idx := indexByID(out, msg.ID); idx >= 0 {
			out[idx] = msg
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func messageSlice(current any) ([]Message, error) {
	switch v := current.(type) {
	case nil:
		return nil, nil
	case []Message:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: message channel holds %T, not []Message", ErrMalformedUpdate, current)
	}
}

// splitMessageUpdate partitions an update into tombstones and upserts.
// Updates may be a single message, a message slice, a message op, or a
// mixed []any of those.
func splitMessageUpdate(update any) (removals []string, clearAll bool, upserts []Message, err error) {
	switch u := update.(type) {
	case nil:
	case Message:
		upserts = append(upserts, u)
	case []Message:
		upserts = append(upserts, u...)
	case AppendMessages:
		upserts = append(upserts, u.Items...)
	case RemoveMessage:
		removals = append(removals, u.ID)
	case RemoveAllMessages:
		clearAll = true
	case []MessageOp:
		for _, op := range u {
			r, c, ups, opErr := splitMessageUpdate(op)
			if opErr != nil {
				return nil, false, nil, opErr
			}
			removals = append(removals, r...)
			clearAll = clearAll || c
			upserts = append(upserts, ups...)
		}
	case []any:
		for _, item := range u {
			r, c, ups, itemErr := splitMessageUpdate(item)
			if itemErr != nil {
				return nil, false, nil, itemErr
			}
			removals = append(removals, r...)
			clearAll = clearAll || c
			upserts = append(upserts, ups...)
		}
	default:
		err = fmt.Errorf("%w: %T is not a message update", ErrMalformedUpdate, update)
	}
	return removals, clearAll, upserts, err
}

// assignMessageIDs fills in identities for entries of a message update that
// lack one, calling nextID once per minted ID in encounter order. Updates
// that carry no messages pass through untouched. The step applier uses this
// with metadata-derived IDs so a resumed run mints the same identities; the
// reducer's own uuid fallback only fires for direct Update calls.
func assignMessageIDs(update any, nextID func() string) any {
	switch u := update.(type) {
	case Message:
		if u.ID == "" {
			u.ID = nextID()
		}
		return u
	case []Message:
		out := make([]Message, len(u))
		for i, msg := range u {
			if msg.ID == "" {
				msg.ID = nextID()
			}
			out[i] = msg
		}
		return out
	case AppendMessages:
		return AppendMessages{Items: assignMessageIDs(u.Items, nextID).([]Message)}
	case []MessageOp:
		out := make([]MessageOp, len(u))
		for i, op := range u {
			out[i] = assignMessageIDs(op, nextID).(MessageOp)
		}
		return out
	case []any:
		out := make([]any, len(u))
		for i, item := range u {
			out[i] = assignMessageIDs(item, nextID)
		}
		return out
	default:
		return update
	}
}

func indexByID(messages []Message, id string) int {
	for i, msg := range messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}
