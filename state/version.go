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
	"strconv"
	"strings"
)

// VersionDomain selects the concrete type used for channel versions.
// All channels in one graph share a single domain; mixing numeric and
// string versions within a run is an error.
type VersionDomain int

const (
	// DomainNumeric uses int64 counters starting at 1.
	DomainNumeric VersionDomain = iota
	// DomainLexicographic uses strings whose byte-wise order is the version
	// order, e.g. zero-padded counters or hybrid logical clock values.
	DomainLexicographic
)

// Null returns the version representing "never updated" for the domain.
func (d VersionDomain) Null() any {
	if d == DomainLexicographic {
		return ""
	}
	return int64(0)
}

// Next returns the version immediately following current in the domain
// order. A nil current is treated as the null version.
func (d VersionDomain) Next(current any) (any, error) {
	if current == nil {
		current = d.Null()
	}
	if d == DomainLexicographic {
		cur, ok := current.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string version, got %T", ErrVersionTypeMismatch, current)
		}
		return nextLexicographic(cur), nil
	}
	cur, ok := toInt64(current)
	if !ok {
		return nil, fmt.Errorf("%w: expected numeric version, got %T", ErrVersionTypeMismatch, current)
	}
	return cur + 1, nil
}

// lexVersionWidth is the digit width of counters minted by
// DomainLexicographic. Fixed width keeps byte-wise order equal to numeric
// order.
const lexVersionWidth = 20

// nextLexicographic returns a string strictly greater than cur in byte-wise
// order. Counters minted by this domain are zero-padded decimals; foreign
// strings restored from a checkpoint (e.g. clock values) are extended
// rather than parsed, since any proper extension sorts after its prefix.
func nextLexicographic(cur string) string {
	if cur == "" {
		return fmt.Sprintf("%0*d", lexVersionWidth, 1)
	}
	if len(cur) == lexVersionWidth {
		if n, err := strconv.ParseInt(cur, 10, 64); err == nil {
			return fmt.Sprintf("%0*d", lexVersionWidth, n+1)
		}
	}
	return cur + "0"
}

// VersionMap is a snapshot of per-channel version counters taken between
// steps. Keys are channel names; channels never updated are absent.
type VersionMap map[string]any

// Clone creates a copy of the version map.
func (m VersionMap) Clone() VersionMap {
	clone := make(VersionMap, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// NewChannelVersions returns the subset of current whose versions advanced
// past previous.
//
// With an empty previous map everything in current is new: the first step
// of a run has no prior snapshot, and triggers and checkpoint writers must
// see the initial values as changes. Otherwise a channel missing from
// previous compares against the null version inferred from current. An
// empty current leaves the null version undefined and nothing qualifies.
func NewChannelVersions(previous, current VersionMap) (VersionMap, error) {
	if len(current) == 0 {
		return VersionMap{}, nil
	}
	null, err := inferNullVersion(current)
	if err != nil {
		return nil, err
	}
	if len(previous) == 0 {
		return current.Clone(), nil
	}
	result := make(VersionMap)
	for name, version := range current {
		prev, ok := previous[name]
		if !ok {
			prev = null
		}
		cmp, err := compareVersions(version, prev)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		if cmp > 0 {
			result[name] = version
		}
	}
	return result, nil
}

// inferNullVersion derives the null version from the map while verifying
// that every value versions in the same domain: one graph never mixes
// numeric and string versions, regardless of which keys pair up across
// snapshots.
func inferNullVersion(m VersionMap) (any, error) {
	var null any
	for name, v := range m {
		n, err := nullVersionFor(v)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		if null == nil {
			null = n
			continue
		}
		if n != null {
			return nil, fmt.Errorf("%w: mixed numeric and string versions", ErrVersionTypeMismatch)
		}
	}
	return null, nil
}

// nullVersionFor infers the "never seen" version from a concrete version
// value: numeric versions null to zero, string versions to "".
func nullVersionFor(v any) (any, error) {
	if _, ok := v.(string); ok {
		return "", nil
	}
	if _, ok := toFloat(v); ok {
		return int64(0), nil
	}
	return nil, fmt.Errorf("%w: unsupported version type %T", ErrVersionTypeMismatch, v)
}

// compareVersions orders two versions of the same domain: strings compare
// byte-wise, numbers numerically. Mixing the two is an error.
func compareVersions(a, b any) (int, error) {
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("%w: cannot compare string with %T", ErrVersionTypeMismatch, b)
		}
		return strings.Compare(as, bs), nil
	}
	if ai, ok := toInt64Exact(a); ok {
		if bi, ok := toInt64Exact(b); ok {
			switch {
			case ai < bi:
				return -1, nil
			case ai > bi:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, fmt.Errorf("%w: cannot compare %T with %T", ErrVersionTypeMismatch, a, b)
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

// toInt64Exact converts integer-typed versions without going through
// float64, so counters past 2^53 still compare exactly. Floats are not
// accepted; they take the widening path.
func toInt64Exact(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// toFloat widens any supported numeric version to float64 for comparison.
// Checkpoint stores that round-trip versions through JSON hand back float64
// where the engine minted int64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
