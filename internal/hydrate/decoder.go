// Package hydrate decodes stored JSON documents onto typed defaults, running
// caller hooks on the raw payload first.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context identifies the document being decoded.
type Context struct {
	SaveID  string
	Version string
}

// PreHook lets callers rewrite the raw payload before decoding, for example to
// migrate an older layout.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the decoded value.
type PostHook[T any] func(Context, *T) error

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts JSON payloads into T, starting from a default value so
// keys missing from the payload keep their defaults.
type Decoder[T any] struct {
	preHooks     []PreHook
	postHooks    []PostHook[T]
	configureDec []func(*json.Decoder)
	defaults     func() T
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithDefaults sets the factory for the value the payload is decoded onto.
func WithDefaults[T any](defaults func() T) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.defaults = defaults
	}
}

// WithUseNumber keeps numbers as json.Number while the payload is a map, so
// hooks do not round large values through float64.
func WithUseNumber[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.UseNumber()
		})
	}
}

// WithDisallowUnknownFields invokes json.Decoder.DisallowUnknownFields.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.DisallowUnknownFields()
		})
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode parses raw as a JSON object and decodes it like DecodeMap. Numbers
// stay json.Number in the payload, so integers past 2^53 survive.
func (d *Decoder[T]) Decode(ctx Context, raw []byte) (T, error) {
	var zero T
	var payload map[string]any
	parser := d.newDecoder(raw)
	parser.UseNumber()
	if err := parser.Decode(&payload); err != nil {
		return zero, fmt.Errorf("hydrate: parse save %q: %w", ctx.SaveID, err)
	}
	return d.DecodeMap(ctx, payload)
}

// DecodeMap runs the pre-hooks over a copy of payload, decodes the result
// onto the defaults and runs the post-hooks.
func (d *Decoder[T]) DecodeMap(ctx Context, payload map[string]any) (T, error) {
	var zero T

	if payload == nil {
		return zero, fmt.Errorf("hydrate: payload is nil for save %q", ctx.SaveID)
	}

	current, err := d.clonePayload(payload)
	if err != nil {
		return zero, fmt.Errorf("hydrate: clone payload for save %q: %w", ctx.SaveID, err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for save %q failed: %w", ctx.SaveID, err)
		}
		if next != nil {
			current = next
		}
	}

	var result T
	if d.defaults != nil {
		result = d.defaults()
	}
	buffer, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("hydrate: marshal payload for save %q: %w", ctx.SaveID, err)
	}
	if err := d.newDecoder(buffer).Decode(&result); err != nil {
		return zero, fmt.Errorf("hydrate: decode save %q: %w", ctx.SaveID, err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for save %q failed: %w", ctx.SaveID, err)
		}
	}

	return result, nil
}

func (d *Decoder[T]) newDecoder(raw []byte) *json.Decoder {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	for _, configure := range d.configureDec {
		if configure != nil {
			configure(decoder)
		}
	}
	return decoder
}

func (d *Decoder[T]) clonePayload(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	decoder.UseNumber()
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
