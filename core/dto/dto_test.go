package dto_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrymomot/actkit/core/dto"
	"github.com/dmitrymomot/actkit/core/registry"
	"github.com/dmitrymomot/actkit/pkg/async"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createUser struct {
	Email string        `json:"email"`
	Age   int           `json:"age"`
	TTL   time.Duration `json:"ttl"`
}

func (c createUser) Validate() error {
	if c.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

func TestApply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("zero binding passes through", func(t *testing.T) {
		t.Parallel()

		raw := map[string]any{"a": 1}
		out, err := dto.Apply(ctx, registry.New(), dto.Binding{}, raw).Await()
		require.NoError(t, err)
		assert.Equal(t, raw, out)
	})

	t.Run("missing dto", func(t *testing.T) {
		t.Parallel()

		_, err := dto.Apply(ctx, registry.New(), dto.Binding{Type: "MyDto", Subtype: "in"}, nil).Await()
		require.Error(t, err)
		assert.EqualError(t, err, "Dto MyDto is not found")
		assert.ErrorIs(t, err, dto.ErrNotFound)

		var nf *dto.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "in", nf.Subtype)
	})

	t.Run("registered value is not a transformer", func(t *testing.T) {
		t.Parallel()

		reg := registry.New()
		reg.RegisterDTO("MyDto", "", 42)

		_, err := dto.Apply(ctx, reg, dto.Binding{Type: "MyDto"}, nil).Await()
		assert.ErrorIs(t, err, dto.ErrNotTransformer)
	})

	t.Run("transformer func", func(t *testing.T) {
		t.Parallel()

		reg := registry.New()
		reg.RegisterDTO("upper", "", dto.TransformerFunc(func(_ context.Context, raw any) (any, error) {
			return map[string]any{"wrapped": raw}, nil
		}))

		out, err := dto.Apply(ctx, reg, dto.Binding{Type: "upper"}, "x").Await()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"wrapped": "x"}, out)
	})

	t.Run("panicking transformer rejects", func(t *testing.T) {
		t.Parallel()

		reg := registry.New()
		reg.RegisterDTO("boom", "", panicTransformer{})

		_, err := dto.Apply(ctx, reg, dto.Binding{Type: "boom"}, nil).Await()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked")
	})
}

type panicTransformer struct{}

func (panicTransformer) FromViewModel(context.Context, any) *async.Future[any] {
	panic("boom")
}

func TestStruct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("decodes weakly typed input", func(t *testing.T) {
		t.Parallel()

		out, err := dto.Struct[createUser]().FromViewModel(ctx, map[string]any{
			"email": "a@b.c",
			"age":   "42",
			"ttl":   "1m",
		}).Await()
		require.NoError(t, err)
		assert.Equal(t, createUser{Email: "a@b.c", Age: 42, TTL: time.Minute}, out)
	})

	t.Run("runs validation", func(t *testing.T) {
		t.Parallel()

		_, err := dto.Struct[createUser]().FromViewModel(ctx, map[string]any{"age": 1}).Await()
		assert.ErrorIs(t, err, dto.ErrValidation)
		assert.ErrorContains(t, err, "email is required")
	})

	t.Run("strict rejects unknown fields", func(t *testing.T) {
		t.Parallel()

		_, err := dto.Struct[createUser](dto.WithStrict()).FromViewModel(ctx, map[string]any{
			"email": "a@b.c",
			"extra": true,
		}).Await()
		assert.ErrorIs(t, err, dto.ErrDecode)
	})

	t.Run("custom tag", func(t *testing.T) {
		t.Parallel()

		type tagged struct {
			Name string `dto:"n"`
		}
		out, err := dto.Struct[tagged](dto.WithTagName("dto")).FromViewModel(ctx, map[string]any{"n": "x"}).Await()
		require.NoError(t, err)
		assert.Equal(t, tagged{Name: "x"}, out)
	})
}

func TestMap(t *testing.T) {
	t.Parallel()

	out, err := dto.Map("").FromViewModel(context.Background(), createUser{Email: "a@b.c", Age: 3}).Await()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"email": "a@b.c", "age": 3, "ttl": time.Duration(0)}, out)
}
