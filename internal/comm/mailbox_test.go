package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailBoxDeliversPostedMessages(t *testing.T) {
	mb := NewMailBox[int](3)
	mb.PostMessage(0, 1, 42)
	mb.PostMessage(0, 2, 7)
	mb.PostBatch(0, 1, []int{1, 2, 3})
	mb.DeliverMyMessages(0)

	mb.ReceiveMyMessages(1)
	mb.ReceiveMyMessages(2)

	require.ElementsMatch(t, []int{42, 1, 2, 3}, mb.Inbox[1])
	require.ElementsMatch(t, []int{7}, mb.Inbox[2])

	mb.ClearMyMessages(1)
	require.Nil(t, mb.Inbox[1])
}

func TestMailBoxPostToAllSkipsSelf(t *testing.T) {
	mb := NewMailBox[string](4)
	mb.PostToAll(2, "hi")
	mb.DeliverMyMessages(2)
	for r := 0; r < 4; r++ {
		mb.ReceiveMyMessages(r)
		if r == 2 {
			require.Empty(t, mb.Inbox[r])
		} else {
			require.Equal(t, []string{"hi"}, mb.Inbox[r])
		}
	}
}

func TestPartitionMapCoversRangeWithoutOverlap(t *testing.T) {
	pm := NewPartitionMap(4, 101)
	seen := make([]bool, 101)
	for r := 0; r < 4; r++ {
		lo, hi := pm.GetBucketRange(r)
		for i := lo; i < hi; i++ {
			require.False(t, seen[i])
			seen[i] = true
		}
	}
	for i, ok := range seen {
		require.True(t, ok, "index %d uncovered", i)
	}
}

func TestPartitionMapRankOfMatchesBucket(t *testing.T) {
	pm := NewPartitionMap(5, 997)
	for k := 0; k < 997; k += 37 {
		r := pm.RankOf(k)
		lo, hi := pm.GetBucketRange(r)
		require.GreaterOrEqual(t, k, lo)
		require.Less(t, k, hi)
	}
}
