package concurrency

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryMap_AllSucceed(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results, err := TryMap(items, 2, func(i int) (int, error) {
		return i * i, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 9, 16, 25}, results)
}

func TestTryMap_ShortCircuitsOnFirstError(t *testing.T) {
	items := []int{1, 2, 3, -1, 5}
	errBad := errors.New("bad value")

	_, err := TryMap(items, 3, func(i int) (int, error) {
		if i < 0 {
			return 0, errBad
		}
		return i, nil
	})
	require.ErrorIs(t, err, errBad)
}

func TestTryMap_Empty(t *testing.T) {
	results, err := TryMap[int, int](nil, 4, func(i int) (int, error) {
		t.Fatal("fn should not be called for empty input")
		return 0, nil
	})
	require.NoError(t, err)
	require.Nil(t, results)
}
