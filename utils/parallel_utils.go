package utils

import (
	"fmt"
	"sync"
)

// DynBuffer is an append-only message buffer that is reused between rounds
type DynBuffer[T any] struct {
	cells []T
}

func NewDynBuffer[T any](capacity int) *DynBuffer[T] {
	return &DynBuffer[T]{cells: make([]T, 0, capacity)}
}

func (db *DynBuffer[T]) Add(msg T) { db.cells = append(db.cells, msg) }

func (db *DynBuffer[T]) Cells() []T { return db.cells }

func (db *DynBuffer[T]) Reset() { db.cells = db.cells[:0] }

// MailBox moves messages between ranks. The pattern for every exchange is:
// for range messages {Post}; Deliver; Barrier; Receive; Clear; Barrier
type MailBox[T any] struct {
	NP           int
	MessageChans []chan *DynBuffer[T]    // One for each rank
	PostMsgQs    []map[int]*DynBuffer[T] // One for each rank, key is target rank
	ReceiveMsgQs []*DynBuffer[T]         // One for each rank
	MailFlag     []bool                  // Rank has messages in outbox
}

func NewMailBox[T any](NP int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:           NP,
		MessageChans: make([]chan *DynBuffer[T], NP),
		PostMsgQs:    make([]map[int]*DynBuffer[T], NP),
		ReceiveMsgQs: make([]*DynBuffer[T], NP),
		MailFlag:     make([]bool, NP),
	}
	for n := 0; n < NP; n++ {
		mb.MessageChans[n] = make(chan *DynBuffer[T], NP) // Worst case is all-to-all
		mb.PostMsgQs[n] = make(map[int]*DynBuffer[T])
		mb.ReceiveMsgQs[n] = NewDynBuffer[T](0)
	}
	return mb
}

func (mb *MailBox[T]) PostMessage(myRank, targetRank int, msg T) {
	if targetRank < 0 || targetRank > mb.NP-1 {
		panic(fmt.Sprintf("target rank %d out of bounds", targetRank))
	}
	tgt, exists := mb.PostMsgQs[myRank][targetRank]
	if !exists {
		tgt = NewDynBuffer[T](1)
		mb.PostMsgQs[myRank][targetRank] = tgt
	}
	tgt.Add(msg)
	mb.MailFlag[myRank] = true
}

func (mb *MailBox[T]) PostMessageToAll(myRank int, msg T) {
	for k := 0; k < mb.NP; k++ {
		if k != myRank {
			mb.PostMessage(myRank, k, msg)
		}
	}
}

func (mb *MailBox[T]) DeliverMyMessages(myRank int) {
	if !mb.MailFlag[myRank] {
		return
	}
	for targetRank, msgBuffer := range mb.PostMsgQs[myRank] {
		if len(msgBuffer.Cells()) == 0 {
			continue
		}
		mb.MessageChans[targetRank] <- msgBuffer
	}
	mb.MailFlag[myRank] = false
}

func (mb *MailBox[T]) ReceiveMyMessages(myRank int) {
	for {
		select {
		case msgBuffer := <-mb.MessageChans[myRank]:
			for _, msg := range msgBuffer.Cells() {
				mb.ReceiveMsgQs[myRank].Add(msg)
			}
			msgBuffer.Reset() // Reset the originating buffer
		default:
			return
		}
	}
}

func (mb *MailBox[T]) ClearMyMessages(myRank int) {
	mb.ReceiveMsgQs[myRank].Reset()
}

// Barrier blocks until NP callers have arrived, then releases all of them.
// It can be reused for any number of rounds.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	np         int
	arrived    int
	generation uint64
}

func NewBarrier(NP int) *Barrier {
	b := &Barrier{np: NP}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.generation
	b.arrived++
	if b.arrived == b.np {
		b.arrived = 0
		b.generation++
		b.cond.Broadcast()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
}

// Communicator connects NP ranks running in goroutines of one process. Each
// collective must be called by every rank, the same number of times, in the
// same order, or the ranks deadlock.
type Communicator struct {
	NP      int
	mb      *MailBox[[]float64]
	barrier *Barrier
}

func NewCommunicator(NP int) *Communicator {
	if NP < 1 {
		panic(fmt.Errorf("communicator needs at least one rank, have %d", NP))
	}
	return &Communicator{
		NP:      NP,
		mb:      NewMailBox[[]float64](NP),
		barrier: NewBarrier(NP),
	}
}

// Rank returns the handle used by one rank to take part in collectives
func (c *Communicator) Rank(rank int) *RankComm {
	if rank < 0 || rank >= c.NP {
		panic(fmt.Errorf("rank %d out of range [0,%d)", rank, c.NP))
	}
	return &RankComm{comm: c, rank: rank}
}

type RankComm struct {
	comm *Communicator
	rank int
}

func (rc *RankComm) MyRank() int { return rc.rank }

// AllReduceMax replaces every entry of values with the maximum of that entry
// over all ranks. All ranks must pass slices of equal length.
func (rc *RankComm) AllReduceMax(values []float64) {
	var (
		c  = rc.comm
		mb = c.mb
	)
	if c.NP == 1 {
		return
	}
	msg := make([]float64, len(values))
	copy(msg, values)
	mb.PostMessageToAll(rc.rank, msg)
	mb.DeliverMyMessages(rc.rank)
	c.barrier.Wait()
	mb.ReceiveMyMessages(rc.rank)
	for _, remote := range mb.ReceiveMsgQs[rc.rank].Cells() {
		if len(remote) != len(values) {
			panic(fmt.Errorf("rank %d: reduction length mismatch, have %d, received %d",
				rc.rank, len(values), len(remote)))
		}
		for i, v := range remote {
			if v > values[i] {
				values[i] = v
			}
		}
	}
	mb.ClearMyMessages(rc.rank)
	// No rank may post the next round before every rank has drained this one
	c.barrier.Wait()
}

type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}
