package fidoerr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	e := New(KindNotAllowed, "nope")
	assert.Equal(t, KindNotAllowed, e.Kind)
	assert.Equal(t, "nope", e.Message)
	assert.Nil(t, e.Cause())
	assert.Equal(t, "NotAllowed: nope", e.Error())
}

func TestWrapHidesCauseFromErrorText(t *testing.T) {
	cause := errors.New("vault entry abc123 for user bob@example.com is corrupt")
	e := Wrap(KindUnknown, "failed to decrypt entry", cause)

	assert.Equal(t, "Unknown: failed to decrypt entry", e.Error())
	assert.NotContains(t, e.Error(), "abc123")
	assert.NotContains(t, e.Error(), "bob@example.com")

	require.NotNil(t, e.Cause())
	assert.Contains(t, e.Cause().Error(), "abc123")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindUnknown, "wrapped", cause)
	assert.True(t, errors.Is(e, cause))
}

func TestIs(t *testing.T) {
	e := New(KindSecurity, "bad origin")
	assert.True(t, Is(e, KindSecurity))
	assert.False(t, Is(e, KindNotAllowed))
	assert.False(t, Is(errors.New("plain"), KindSecurity))
}

func TestAsUnknownPassesThroughTaggedErrors(t *testing.T) {
	e := New(KindTypeError, "bad length")
	got := AsUnknown(e)
	assert.Same(t, e, got)
}

func TestAsUnknownWrapsPlainErrors(t *testing.T) {
	plain := errors.New("db connection refused")
	got := AsUnknown(plain)
	require.NotNil(t, got)
	assert.Equal(t, KindUnknown, got.Kind)
	assert.Contains(t, got.Cause().Error(), "db connection refused")
}

func TestAsUnknownNil(t *testing.T) {
	assert.Nil(t, AsUnknown(nil))
}
