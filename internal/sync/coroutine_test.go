package sync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoroutine_Execute(t *testing.T) {
	executed := false

	c := NewCoroutine(Background(), func(ctx Context) error {
		executed = true
		return nil
	})

	c.Execute()

	require.True(t, executed)
	require.True(t, c.Finished())
	require.NoError(t, c.Error())
}

func TestCoroutine_Yield(t *testing.T) {
	steps := 0

	c := NewCoroutine(Background(), func(ctx Context) error {
		s := getCoState(ctx)

		steps++
		s.Yield()
		steps++

		return nil
	})

	c.Execute()
	require.Equal(t, 1, steps)
	require.False(t, c.Finished())
	require.True(t, c.Blocked())

	c.Execute()
	require.Equal(t, 2, steps)
	require.True(t, c.Finished())
}

func TestCoroutine_Error(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		return errors.New("expected")
	})

	c.Execute()

	require.True(t, c.Finished())
	require.EqualError(t, c.Error(), "expected")
}

func TestCoroutine_PanicIsCaptured(t *testing.T) {
	c := NewCoroutine(Background(), func(ctx Context) error {
		panic("boom")
	})

	c.Execute()

	require.True(t, c.Finished())
	require.ErrorContains(t, c.Error(), "boom")
}

func TestCoroutine_ExitBlocked(t *testing.T) {
	reached := false

	c := NewCoroutine(Background(), func(ctx Context) error {
		s := getCoState(ctx)
		s.Yield()

		reached = true
		return nil
	})

	c.Execute()
	require.False(t, c.Finished())

	c.Exit()

	require.True(t, c.Finished())
	require.False(t, reached)
}
