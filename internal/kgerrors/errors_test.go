package kgerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"codenerd/internal/kgerrors"
)

func TestParseError_FormatsWithAndWithoutPosition(t *testing.T) {
	withPos := &kgerrors.ParseError{Message: "bad token", Line: 3, Column: 7}
	assert.Equal(t, "parse error at 3:7: bad token", withPos.Error())

	noPos := &kgerrors.ParseError{Message: "bad token"}
	assert.Equal(t, "parse error: bad token", noPos.Error())
}

func TestUnstratified_JoinsCycleMembers(t *testing.T) {
	err := &kgerrors.Unstratified{From: "a", To: "b", Cycle: []string{"a", "b", "c"}}
	assert.Equal(t, "unstratified negation a -> b through cycle [a, b, c]", err.Error())
}

func TestIoError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")
	err := &kgerrors.IoError{Path: "/data/default", Cause: cause}

	assert.ErrorIs(t, err, cause)

	var ioErr *kgerrors.IoError
	assert.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "/data/default", ioErr.Path)
}

func TestNotFoundAndAlreadyExists_AreDistinguishableViaErrorsAs(t *testing.T) {
	var err error = &kgerrors.NotFound{Kind: "knowledge_graph", Name: "other"}

	var notFound *kgerrors.NotFound
	var alreadyExists *kgerrors.AlreadyExists
	assert.True(t, errors.As(err, &notFound))
	assert.False(t, errors.As(err, &alreadyExists))
	assert.Equal(t, "knowledge_graph not found: other", notFound.Error())
}
