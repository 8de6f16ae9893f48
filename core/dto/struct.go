package dto

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Validator is implemented by DTO structs that check themselves after decoding.
type Validator interface {
	Validate() error
}

type structOptions struct {
	tagName string
	strict  bool
}

// StructOption configures Struct.
type StructOption func(*structOptions)

// WithTagName sets the struct tag used to map view model fields. Default is "json".
func WithTagName(name string) StructOption {
	return func(o *structOptions) {
		if name != "" {
			o.tagName = name
		}
	}
}

// WithStrict rejects view models with fields the struct does not declare
// and disables weak type conversion.
func WithStrict() StructOption {
	return func(o *structOptions) {
		o.strict = true
	}
}

// Struct returns a Transformer that decodes a view model into T.
// If T implements Validator, Validate runs on the decoded value.
func Struct[T any](opts ...StructOption) Transformer {
	o := structOptions{tagName: "json"}
	for _, opt := range opts {
		opt(&o)
	}

	return TransformerFunc(func(_ context.Context, raw any) (any, error) {
		var out T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &out,
			TagName:          o.tagName,
			WeaklyTypedInput: !o.strict,
			ErrorUnused:      o.strict,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
			),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}

		if v, ok := any(&out).(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrValidation, err)
			}
		}
		return out, nil
	})
}

// Map returns a Transformer that encodes a struct result back into a
// map[string]any view model using the given tag name.
func Map(tagName string) Transformer {
	if tagName == "" {
		tagName = "json"
	}
	return TransformerFunc(func(_ context.Context, raw any) (any, error) {
		out := map[string]any{}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &out,
			TagName: tagName,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return out, nil
	})
}
