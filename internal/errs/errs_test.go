package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrsCollectsEveryFailure(t *testing.T) {
	require := require.New(t)
	var e Errs

	require.False(e.Errored())
	require.NoError(e.Err())

	e.Add(nil)
	require.False(e.Errored(), "nil errors are ignored")

	e.Add(errors.New("first"))
	e.Add(errors.New("second"))
	require.True(e.Errored())
	require.Equal(2, e.Len())

	err := e.Err()
	require.Error(err)
	require.Contains(err.Error(), "first")
	require.Contains(err.Error(), "second")
}

func TestErrsSingleErrorPassesThrough(t *testing.T) {
	require := require.New(t)
	var e Errs

	sentinel := errors.New("boom")
	e.Add(sentinel)
	require.Same(sentinel, e.Err())
}
