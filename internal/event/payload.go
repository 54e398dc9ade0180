// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// Package event defines the integration event envelope exchanged over the
// broker and the payload accessors handlers use to read it.
//
// An integration event is a (routing key, JSON object) pair. The routing
// key travels as the message subject suffix and in message metadata; the
// payload is the UTF-8 JSON body. Events are transient: handlers copy the
// fields they need into their own durable records.
package event

import (
	"errors"
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// MetadataRoutingKey is the Watermill metadata key carrying the routing key.
const MetadataRoutingKey = "routing_key"

// ErrMalformed marks a message body that could not be parsed as a JSON
// object. Malformed bodies are permanent per-message faults and are
// dead-lettered, never retried.
var ErrMalformed = errors.New("malformed event payload")

// Payload is a parsed integration event body.
type Payload map[string]any

// ParsePayload decodes a message body into a Payload.
// A body that is not a JSON object fails with ErrMalformed.
func ParsePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformed)
	}
	return p, nil
}

// Int returns the value under key as an int64.
// JSON numbers arrive as float64; integral values are converted.
func (p Payload) Int(key string) (int64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// RequireInt returns the value under key as an int64 or an error if the
// key is absent or not an integer. Missing identity fields are treated as
// unexpected faults by handlers.
func (p Payload) RequireInt(key string) (int64, error) {
	n, ok := p.Int(key)
	if !ok {
		return 0, fmt.Errorf("payload field %q missing or not an integer", key)
	}
	return n, nil
}

// IntOr returns the value under key as an int64, or def when absent.
func (p Payload) IntOr(key string, def int64) int64 {
	if n, ok := p.Int(key); ok {
		return n
	}
	return def
}

// String returns the value under key as a string.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringOr returns the value under key as a string, or def when absent.
func (p Payload) StringOr(key, def string) string {
	if s, ok := p.String(key); ok {
		return s
	}
	return def
}

// Float returns the value under key as a float64.
func (p Payload) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// FloatPtr returns a pointer to the float value under key, or nil when
// the key is absent or not numeric. Used for optional fields like rating.
func (p Payload) FloatPtr(key string) *float64 {
	if f, ok := p.Float(key); ok {
		return &f
	}
	return nil
}

// Raw re-encodes the payload as compact JSON for audit storage.
func (p Payload) Raw() []byte {
	data, err := json.Marshal(p)
	if err != nil {
		// A payload that decoded from JSON always re-encodes.
		return []byte("{}")
	}
	return data
}
