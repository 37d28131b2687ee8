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

func TestNewChannelVersionsBootstrap(t *testing.T) {
	current := VersionMap{"a": int64(1), "b": int64(2)}
	got, err := NewChannelVersions(VersionMap{}, current)
	require.NoError(t, err)
	require.Equal(t, current, got)

	// A nil previous map is the same bootstrap case.
	got, err = NewChannelVersions(nil, current)
	require.NoError(t, err)
	require.Equal(t, current, got)
}

func TestNewChannelVersionsEmptyCurrent(t *testing.T) {
	got, err := NewChannelVersions(VersionMap{"a": int64(3)}, VersionMap{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestNewChannelVersionsStrictGreater(t *testing.T) {
	previous := VersionMap{"a": int64(1), "b": int64(5)}
	current := VersionMap{"a": int64(1), "b": int64(6), "c": int64(1)}
	got, err := NewChannelVersions(previous, current)
	require.NoError(t, err)
	require.Equal(t, VersionMap{"b": int64(6), "c": int64(1)}, got)
}

func TestNewChannelVersionsStringDomain(t *testing.T) {
	previous := VersionMap{"a": "m"}
	current := VersionMap{"a": "m", "b": "a"}
	got, err := NewChannelVersions(previous, current)
	require.NoError(t, err)
	require.Equal(t, VersionMap{"b": "a"}, got)
}

func TestNewChannelVersionsIdempotent(t *testing.T) {
	previous := VersionMap{"a": int64(2), "b": int64(2)}
	current := VersionMap{"a": int64(3), "b": int64(2)}
	first, err := NewChannelVersions(previous, current)
	require.NoError(t, err)
	second, err := NewChannelVersions(previous, current)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestNewChannelVersionsTypeMismatch(t *testing.T) {
	t.Run("across snapshots", func(t *testing.T) {
		_, err := NewChannelVersions(VersionMap{"a": int64(1)}, VersionMap{"a": "2"})
		require.ErrorIs(t, err, ErrVersionTypeMismatch)
	})

	t.Run("within current", func(t *testing.T) {
		// Must fail regardless of which entry is visited first, even when
		// every key happens to pair with a same-typed previous value.
		previous := VersionMap{"a": "m", "b": int64(1)}
		current := VersionMap{"a": "n", "b": int64(2)}
		for i := 0; i < 50; i++ {
			_, err := NewChannelVersions(previous, current)
			require.ErrorIs(t, err, ErrVersionTypeMismatch)
		}
	})

	t.Run("within current on bootstrap", func(t *testing.T) {
		_, err := NewChannelVersions(nil, VersionMap{"a": "n", "b": int64(2)})
		require.ErrorIs(t, err, ErrVersionTypeMismatch)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := NewChannelVersions(nil, VersionMap{"a": true})
		require.ErrorIs(t, err, ErrVersionTypeMismatch)
	})
}

func TestNewChannelVersionsJSONRoundTrip(t *testing.T) {
	// Versions restored through JSON come back as float64.
	previous := VersionMap{"a": float64(1), "b": float64(5)}
	current := VersionMap{"a": int64(1), "b": int64(6)}
	got, err := NewChannelVersions(previous, current)
	require.NoError(t, err)
	require.Equal(t, VersionMap{"b": int64(6)}, got)
}

func TestNumericDomain(t *testing.T) {
	d := DomainNumeric
	assert.Equal(t, int64(0), d.Null())

	v, err := d.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = d.Next(v)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = d.Next("nope")
	require.ErrorIs(t, err, ErrVersionTypeMismatch)
}

func TestLexicographicDomain(t *testing.T) {
	d := DomainLexicographic
	assert.Equal(t, "", d.Null())

	prev := ""
	for i := 0; i < 50; i++ {
		next, err := d.Next(prev)
		require.NoError(t, err)
		nextStr := next.(string)
		require.Greater(t, nextStr, prev)
		prev = nextStr
	}

	// Foreign strings (e.g. clock values from a checkpoint) still advance.
	next, err := d.Next("m")
	require.NoError(t, err)
	require.Greater(t, next.(string), "m")

	_, err = d.Next(int64(1))
	require.ErrorIs(t, err, ErrVersionTypeMismatch)
}

func TestCompareVersions(t *testing.T) {
	cmp, err := compareVersions(int64(2), int64(1))
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = compareVersions("a", "b")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = compareVersions(float64(3), int64(3))
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	// Counters past 2^53 are indistinguishable as float64; integer pairs
	// must compare exactly.
	big := int64(1) << 60
	cmp, err = compareVersions(big+1, big)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	_, err = compareVersions("a", int64(1))
	require.ErrorIs(t, err, ErrVersionTypeMismatch)
}
