// Package snowflake issues time-ordered 63-bit IDs for messages.
//
// Layout, high to low: 41 bits of milliseconds since Epoch, 10 bits of worker
// ID, 12 bits of per-millisecond sequence.
package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01T00:00:00Z in milliseconds.
	Epoch int64 = 1704067200000

	WorkerBits   = 10
	SequenceBits = 12

	MaxWorkerID  = -1 ^ (-1 << WorkerBits)
	sequenceMask = -1 ^ (-1 << SequenceBits)
	workerShift  = SequenceBits
	timeShift    = SequenceBits + WorkerBits

	// 时钟小幅回拨时最多等待这么久
	maxClockDrift = 5 * time.Millisecond
)

var (
	ErrInvalidWorkerID     = errors.New("snowflake: worker id out of range")
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
)

// ID is a snowflake identifier. It sorts by creation time across workers.
type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Time returns the millisecond the ID was issued in.
func (id ID) Time() time.Time {
	return time.UnixMilli((int64(id) >> timeShift) + Epoch)
}

func (id ID) Worker() int64 {
	return (int64(id) >> workerShift) & MaxWorkerID
}

func (id ID) Sequence() int64 {
	return int64(id) & sequenceMask
}

// ParseID reverses ID.String.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(n), nil
}

// Generator is safe for concurrent use. Two generators must not share a
// worker ID.
type Generator struct {
	mu       sync.Mutex
	workerID int64
	lastMs   int64
	sequence int64
	now      func() time.Time
}

func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{workerID: workerID, now: time.Now}, nil
}

func (g *Generator) NextID() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		if time.Duration(g.lastMs-ms)*time.Millisecond > maxClockDrift {
			return 0, ErrClockMovedBackwards
		}
		ms = g.waitUntil(g.lastMs)
	}

	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			// 本毫秒序列号用尽
			ms = g.waitUntil(g.lastMs + 1)
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return ID((ms-Epoch)<<timeShift | g.workerID<<workerShift | g.sequence), nil
}

// NextString is NextID formatted for string primary keys.
func (g *Generator) NextString() (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (g *Generator) waitUntil(target int64) int64 {
	ms := g.now().UnixMilli()
	for ms < target {
		time.Sleep(100 * time.Microsecond)
		ms = g.now().UnixMilli()
	}
	return ms
}
