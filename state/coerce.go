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
	"reflect"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// CoerceUpdate normalizes a node's raw return value into per-channel
// updates.
//
// Structured values — State, string-keyed maps and structs — fan out into
// one update per field, keyed by field name. Everything else (slices,
// scalars, nil, temporal values) addresses defaultChannel as a single
// update. time.Time is compound but its fields are not state keys, so it
// wraps like a scalar.
func CoerceUpdate(raw any, defaultChannel string) (State, error) {
	switch v := raw.(type) {
	case State:
		return v.Clone(), nil
	case map[string]any:
		return State(v).Clone(), nil
	case time.Time, *time.Time:
		return wrapDefault(raw, defaultChannel)
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map keys of type %s cannot name channels", ErrMalformedUpdate, rv.Type().Key())
		}
		result := make(State, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			result[iter.Key().String()] = iter.Value().Interface()
		}
		return result, nil
	case reflect.Struct:
		if rv.Type() == timeType {
			return wrapDefault(raw, defaultChannel)
		}
		return coerceStruct(rv)
	default:
		return wrapDefault(raw, defaultChannel)
	}
}

// coerceStruct treats each exported field as a separate per-channel update,
// honoring json tags the way the checkpoint wire format does.
func coerceStruct(rv reflect.Value) (State, error) {
	rt := rv.Type()
	result := make(State, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName := strings.Split(tag, ",")[0]
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		result[name] = rv.Field(i).Interface()
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: struct %s has no exported fields", ErrMalformedUpdate, rt)
	}
	return result, nil
}

func wrapDefault(raw any, defaultChannel string) (State, error) {
	if defaultChannel == "" {
		return nil, fmt.Errorf("%w: value of type %T needs a default channel", ErrMalformedUpdate, raw)
	}
	return State{defaultChannel: raw}, nil
}
