package arraylist_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x1vault/core/internal/arraylist"
)

func TestInsertAndFull(t *testing.T) {
	l := arraylist.New[int](3)
	require.NoError(t, l.Insert(1))
	require.NoError(t, l.Insert(2))
	require.NoError(t, l.Insert(3))
	require.ErrorIs(t, l.Insert(4), arraylist.ErrFull)
	require.Equal(t, 3, l.Len())
}

func TestGetCurrentEmpty(t *testing.T) {
	l := arraylist.New[string](2)
	_, err := l.GetCurrent()
	require.ErrorIs(t, err, arraylist.ErrEmpty)
}

func TestIterate(t *testing.T) {
	l := arraylist.New[int](4)
	for _, v := range []int{10, 20, 30} {
		require.NoError(t, l.Insert(v))
	}

	cur, err := l.GetCurrent()
	require.NoError(t, err)
	require.Equal(t, 10, cur)

	require.NoError(t, l.IterateNext())
	cur, _ = l.GetCurrent()
	require.Equal(t, 20, cur)

	require.NoError(t, l.IterateNext())
	cur, _ = l.GetCurrent()
	require.Equal(t, 30, cur)

	require.ErrorIs(t, l.IterateNext(), arraylist.ErrAtEnd)

	require.NoError(t, l.IterateBack())
	require.NoError(t, l.IterateBack())
	require.ErrorIs(t, l.IterateBack(), arraylist.ErrAtStart)
}

func TestDeleteCurrentMiddle(t *testing.T) {
	l := arraylist.New[int](4)
	for _, v := range []int{1, 2, 3} {
		require.NoError(t, l.Insert(v))
	}
	require.NoError(t, l.IterateNext()) // cursor -> 2

	require.NoError(t, l.DeleteCurrent())
	require.Equal(t, 2, l.Len())

	cur, err := l.GetCurrent()
	require.NoError(t, err)
	require.Equal(t, 3, cur, "cursor should now see the successor shifted into its slot")
}

func TestDeleteCurrentLast(t *testing.T) {
	l := arraylist.New[int](4)
	for _, v := range []int{1, 2, 3} {
		require.NoError(t, l.Insert(v))
	}
	require.NoError(t, l.IterateNext())
	require.NoError(t, l.IterateNext()) // cursor -> 3, last element

	require.NoError(t, l.DeleteCurrent())
	require.Equal(t, 2, l.Len())

	cur, err := l.GetCurrent()
	require.NoError(t, err)
	require.Equal(t, 2, cur, "cursor should move back one when the last element is deleted")
}

func TestInsertDeleteRestoresLength(t *testing.T) {
	l := arraylist.New[int](4)
	require.NoError(t, l.Insert(1))
	require.NoError(t, l.Insert(2))
	priorLen := l.Len()

	require.NoError(t, l.Insert(3))
	require.NoError(t, l.IterateNext())
	require.NoError(t, l.IterateNext())
	require.NoError(t, l.DeleteCurrent())

	require.Equal(t, priorLen, l.Len())
}
