// Package comm implements the rank-to-rank messaging primitive the LET
// exchange of spec.md §4.G needs, adapted from the teacher's
// utils.MailBox[T]/PartitionMap (utils/parallel_utils.go): post messages
// addressed to a target rank, deliver them over a channel, and drain the
// channel into a per-rank inbox. Ranks here are goroutines rather than
// MPI processes, but the post/deliver/receive protocol is unchanged.
package comm

// MailBox routes typed messages between NP logical ranks over buffered
// channels. The usage pattern mirrors the teacher's NeighborNotifier:
// PostMessage (possibly many times) from the sending rank, then
// DeliverMyMessages to flush the outbox onto the wire, then
// ReceiveMyMessages on the recipient to drain what arrived.
type MailBox[T any] struct {
	NP          int
	channels    []chan []T
	outbox      []map[int][]T
	Inbox       [][]T
	hasOutgoing []bool
}

func NewMailBox[T any](np int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:          np,
		channels:    make([]chan []T, np),
		outbox:      make([]map[int][]T, np),
		Inbox:       make([][]T, np),
		hasOutgoing: make([]bool, np),
	}
	for n := 0; n < np; n++ {
		mb.channels[n] = make(chan []T, np)
		mb.outbox[n] = make(map[int]([]T))
	}
	return mb
}

// PostMessage queues msg from myRank to targetRank's inbox, not yet sent.
func (mb *MailBox[T]) PostMessage(myRank, targetRank int, msg T) {
	mb.outbox[myRank][targetRank] = append(mb.outbox[myRank][targetRank], msg)
	mb.hasOutgoing[myRank] = true
}

// PostBatch queues a whole slice of messages in one call, the shape the
// LET exchange uses to ship a rank's "needed bodies" request in one go.
func (mb *MailBox[T]) PostBatch(myRank, targetRank int, msgs []T) {
	if len(msgs) == 0 {
		return
	}
	mb.outbox[myRank][targetRank] = append(mb.outbox[myRank][targetRank], msgs...)
	mb.hasOutgoing[myRank] = true
}

// PostToAll queues msg to every rank other than myRank.
func (mb *MailBox[T]) PostToAll(myRank int, msg T) {
	for r := 0; r < mb.NP; r++ {
		if r != myRank {
			mb.PostMessage(myRank, r, msg)
		}
	}
}

// DeliverMyMessages flushes myRank's outbox onto the channels of its
// addressees. Callers must call this for every rank before any rank
// calls ReceiveMyMessages, since the channels are the "wire" between
// the two phases.
func (mb *MailBox[T]) DeliverMyMessages(myRank int) {
	if !mb.hasOutgoing[myRank] {
		return
	}
	for target, msgs := range mb.outbox[myRank] {
		mb.channels[target] <- msgs
	}
	mb.outbox[myRank] = make(map[int][]T)
	mb.hasOutgoing[myRank] = false
}

// ReceiveMyMessages drains whatever has arrived on myRank's channel into
// Inbox[myRank], non-blocking: a rank with nothing sent to it returns
// immediately.
func (mb *MailBox[T]) ReceiveMyMessages(myRank int) {
	for {
		select {
		case batch := <-mb.channels[myRank]:
			mb.Inbox[myRank] = append(mb.Inbox[myRank], batch...)
		default:
			return
		}
	}
}

// ClearMyMessages resets myRank's inbox between solves.
func (mb *MailBox[T]) ClearMyMessages(myRank int) {
	mb.Inbox[myRank] = nil
}

// PartitionMap splits [0,MaxIndex) into ParallelDegree contiguous ranges
// with at most a one-item imbalance, the same Split1D scheme as the
// teacher's utils.PartitionMap, used by the Block and Morton
// partitioners to assign contiguous body ranges to ranks.
type PartitionMap struct {
	MaxIndex       int
	ParallelDegree int
	Partitions     [][2]int
}

func NewPartitionMap(parallelDegree, maxIndex int) *PartitionMap {
	pm := &PartitionMap{MaxIndex: maxIndex, ParallelDegree: parallelDegree, Partitions: make([][2]int, parallelDegree)}
	for n := 0; n < parallelDegree; n++ {
		pm.Partitions[n] = pm.split1D(n)
	}
	return pm
}

func (pm *PartitionMap) split1D(rank int) [2]int {
	npart := pm.MaxIndex / pm.ParallelDegree
	remainder := pm.MaxIndex % pm.ParallelDegree
	startAdd, endAdd := 0, 0
	if remainder != 0 {
		if rank+1 > remainder {
			startAdd, endAdd = remainder, 0
		} else {
			startAdd, endAdd = rank, 1
		}
	}
	lo := rank*npart + startAdd
	return [2]int{lo, lo + npart + endAdd}
}

func (pm *PartitionMap) GetBucketRange(rank int) (lo, hi int) {
	b := pm.Partitions[rank]
	return b[0], b[1]
}

// RankOf returns which rank owns global index k.
func (pm *PartitionMap) RankOf(k int) int {
	guess := pm.ParallelDegree * k / pm.MaxIndex
	if guess >= pm.ParallelDegree {
		guess = pm.ParallelDegree - 1
	}
	for guess > 0 && pm.Partitions[guess][0] > k {
		guess--
	}
	for guess < pm.ParallelDegree-1 && pm.Partitions[guess][1] <= k {
		guess++
	}
	return guess
}
