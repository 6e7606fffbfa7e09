package core

import (
	"fmt"
	"sync"
	"time"

	"cyberswap/core/state"
	"cyberswap/storage"
)

// BlockInfo is the block context handed to contract calls.
type BlockInfo struct {
	Height uint64 `json:"height"`
	Time   int64  `json:"time"`
}

// Clock supplies block context. Commit is called after every accepted
// execution.
type Clock interface {
	Current() BlockInfo
	Commit()
}

// BlockClock stamps blocks with wall-clock seconds. Each accepted execution
// commits one block and block times never repeat or go backwards.
type BlockClock struct {
	mu     sync.Mutex
	height uint64
	floor  int64
	nowFn  func() time.Time
}

// NewBlockClock starts at the given block. start.Time is the earliest time
// the first block may carry.
func NewBlockClock(start BlockInfo) *BlockClock {
	return &BlockClock{height: start.Height, floor: start.Time, nowFn: time.Now}
}

// SetNowFunc overrides the wall clock. Nil restores time.Now.
func (c *BlockClock) SetNowFunc(fn func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn == nil {
		fn = time.Now
	}
	c.nowFn = fn
}

func (c *BlockClock) Current() BlockInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BlockInfo{Height: c.height, Time: c.stamp()}
}

func (c *BlockClock) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.floor = c.stamp() + 1
	c.height++
}

func (c *BlockClock) stamp() int64 {
	if now := c.nowFn().Unix(); now > c.floor {
		return now
	}
	return c.floor
}

// ManualClock only moves when told to. Tests use it to pin executions to a
// block.
type ManualClock struct {
	mu      sync.Mutex
	current BlockInfo
}

func NewManualClock(height uint64, unix int64) *ManualClock {
	return &ManualClock{current: BlockInfo{Height: height, Time: unix}}
}

func (c *ManualClock) Current() BlockInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *ManualClock) Commit() {}

// Set pins the clock to a block.
func (c *ManualClock) Set(height uint64, unix int64) {
	c.mu.Lock()
	c.current = BlockInfo{Height: height, Time: unix}
	c.mu.Unlock()
}

// Advance moves the clock forward by blocks and seconds.
func (c *ManualClock) Advance(blocks uint64, seconds int64) {
	c.mu.Lock()
	c.current.Height += blocks
	c.current.Time += seconds
	c.mu.Unlock()
}

// ResumeBlock returns the block following the last one committed to db, or
// start when nothing has been committed yet. The resumed block is never
// stamped earlier than one second after the last committed block.
func ResumeBlock(db storage.KV, start BlockInfo) (BlockInfo, error) {
	last, ok, err := state.NewManager(db).LastBlock()
	if err != nil {
		return BlockInfo{}, fmt.Errorf("clock: load last block: %w", err)
	}
	if !ok || last.Height < start.Height {
		return start, nil
	}
	next := BlockInfo{Height: last.Height + 1, Time: int64(last.Time) + 1}
	if start.Time > next.Time {
		next.Time = start.Time
	}
	return next, nil
}
