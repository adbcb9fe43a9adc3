package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNexusError_Format(t *testing.T) {
	err := NewErrorf(ErrCodeNotFound, "agent %s", "a1")
	assert.Equal(t, "[NOT_FOUND] agent a1", err.Error())

	err = NewError(ErrCodeInvalidState, "no successor").WithNode("planner")
	assert.Equal(t, "[INVALID_STATE] node planner: no successor", err.Error())
}

func TestHasCode_Wrapped(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("save: %w", NewError(ErrCodeStore, "insert").WithCause(cause))

	assert.True(t, HasCode(err, ErrCodeStore))
	assert.False(t, HasCode(err, ErrCodeNotFound))
	assert.False(t, HasCode(cause, ErrCodeStore))
	assert.ErrorIs(t, err, cause)
}

func TestParseLang(t *testing.T) {
	assert.Equal(t, LangZH, ParseLang("zh-CN"))
	assert.Equal(t, LangZH, ParseLang("zh"))
	assert.Equal(t, LangEN, ParseLang("fr"))
	assert.Equal(t, LangEN, ParseLang(""))
}
