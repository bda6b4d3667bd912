package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := NotFound("Tab %d not found", 3)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrModalState))
	assert.Equal(t, "Tab 3 not found", err.Error())

	wrapped := fmt.Errorf("select tab: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestCauseIsPreserved(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Connection(cause, "connect to %s", "ws://127.0.0.1:9222")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, "connect to ws://127.0.0.1:9222: dial tcp: refused", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
