package exitfsm

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"eliteguard/internal/model"
)

// Sender transmits a Command to the execution venue. Grounded on spec
// §4.G's abstract command dispatch; a real deployment wires the MT5/broker
// bridge here, tests wire a fake.
type Sender interface {
	Send(ctx context.Context, cmd *model.Command) error
}

const (
	minInterCommandGap = 700 * time.Millisecond
	maxRetries         = 3
)

// retryBackoffMs mirrors command_bus.py's exponential-backoff-plus-jitter
// schedule: [150, 300, 600] ms x U(0.8, 1.2).
var retryBackoffMs = [3]int{150, 300, 600}

// maxTrackedStatuses bounds the status map so a long-running engine
// doesn't accumulate unbounded history; old entries are evicted in
// insertion order once the bound is hit.
const maxTrackedStatuses = 2000

// CommandState is the lifecycle stage of a dispatched command, mirroring
// command_bus.py's get_command_status states.
type CommandState string

const (
	CommandPending   CommandState = "PENDING"
	CommandSent      CommandState = "SENT"
	CommandFailed    CommandState = "FAILED"
	CommandRetried   CommandState = "RETRIED"
	CommandExhausted CommandState = "EXHAUSTED"
)

// CommandStatus is one tracked command's current lifecycle snapshot,
// queryable by fire_id:seq (spec's supplemented "command status lookup"
// feature, grounded on command_bus.py's get_command_status).
type CommandStatus struct {
	Ticket    int64
	CmdType   model.CommandType
	State     CommandState
	Retries   int
	LastError string
	UpdatedAt time.Time
}

// cmdQueueItem wraps a Command for the priority heap.
type cmdQueueItem struct {
	cmd   *model.Command
	index int
}

type cmdHeap []*cmdQueueItem

func (h cmdHeap) Len() int            { return len(h) }
func (h cmdHeap) Less(i, j int) bool  { return h[i].cmd.Less(h[j].cmd) }
func (h cmdHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *cmdHeap) Push(x interface{}) {
	item := x.(*cmdQueueItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *cmdHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// CommandBus is a priority queue with a single processor goroutine that
// enforces a minimum inter-command gap per ticket and retries with
// exponential backoff plus jitter. Grounded directly on
// original_source/src/bitten_core/command_bus.py.
type CommandBus struct {
	sender Sender
	seq    int64

	mu       sync.Mutex
	cond     *sync.Cond
	queue    cmdHeap
	lastSent map[int64]time.Time

	statusMu    sync.RWMutex
	statuses    map[string]CommandStatus
	statusOrder []string

	closed atomic.Bool
}

// NewCommandBus creates a CommandBus dispatching through sender.
func NewCommandBus(sender Sender) *CommandBus {
	b := &CommandBus{
		sender:   sender,
		lastSent: make(map[int64]time.Time),
		statuses: make(map[string]CommandStatus),
	}
	b.cond = sync.NewCond(&b.mu)
	heap.Init(&b.queue)
	return b
}

// statusKey is the fire_id:seq composite key command_bus.py's
// get_command_status queries by.
func statusKey(cmd *model.Command) string {
	return fmt.Sprintf("%s:%d", cmd.FireID, cmd.Seq)
}

// Status looks up a tracked command's current lifecycle state by
// fire_id:seq. ok is false if the command was never enqueued or has
// aged out of the bounded history.
func (b *CommandBus) Status(fireID string, seq int64) (CommandStatus, bool) {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()
	s, ok := b.statuses[fmt.Sprintf("%s:%d", fireID, seq)]
	return s, ok
}

func (b *CommandBus) setStatus(cmd *model.Command, state CommandState, lastErr string) {
	key := statusKey(cmd)
	b.statusMu.Lock()
	defer b.statusMu.Unlock()
	if _, exists := b.statuses[key]; !exists {
		b.statusOrder = append(b.statusOrder, key)
		if len(b.statusOrder) > maxTrackedStatuses {
			oldest := b.statusOrder[0]
			b.statusOrder = b.statusOrder[1:]
			delete(b.statuses, oldest)
		}
	}
	b.statuses[key] = CommandStatus{
		Ticket:    cmd.Ticket,
		CmdType:   cmd.CmdType,
		State:     state,
		Retries:   cmd.Retries,
		LastError: lastErr,
		UpdatedAt: time.Now(),
	}
}

// NextSeq returns the next monotonically increasing per-engine sequence
// number (spec §4.G "every command carries a per-engine monotonically
// increasing seq").
func (b *CommandBus) NextSeq() int64 {
	return atomic.AddInt64(&b.seq, 1)
}

// Enqueue adds a command to the priority queue. Close commands (priority
// 0) are dispatched before modifications (priority 1).
func (b *CommandBus) Enqueue(cmd *model.Command) {
	state := CommandPending
	if cmd.Retries > 0 {
		state = CommandRetried
	}
	b.setStatus(cmd, state, "")

	b.mu.Lock()
	heap.Push(&b.queue, &cmdQueueItem{cmd: cmd})
	b.mu.Unlock()
	b.cond.Signal()
}

// Run drives the processor loop until ctx is cancelled.
func (b *CommandBus) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.closed.Store(true)
		b.cond.Broadcast()
	}()

	for {
		cmd := b.pop()
		if cmd == nil {
			return
		}
		b.dispatch(ctx, cmd)
	}
}

func (b *CommandBus) pop() *model.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.queue.Len() == 0 {
		if b.closed.Load() {
			return nil
		}
		b.cond.Wait()
	}
	item := heap.Pop(&b.queue).(*cmdQueueItem)
	return item.cmd
}

func (b *CommandBus) dispatch(ctx context.Context, cmd *model.Command) {
	b.waitForGap(cmd.Ticket)

	err := b.sender.Send(ctx, cmd)
	b.mu.Lock()
	b.lastSent[cmd.Ticket] = time.Now()
	b.mu.Unlock()

	if err == nil {
		b.setStatus(cmd, CommandSent, "")
		return
	}

	if cmd.Retries >= maxRetries {
		log.Printf("[exitfsm] command %s ticket=%d exhausted retries: %v", cmd.CmdType, cmd.Ticket, err)
		b.setStatus(cmd, CommandExhausted, err.Error())
		return
	}

	b.setStatus(cmd, CommandFailed, err.Error())
	cmd.Retries++
	base := retryBackoffMs[min3(cmd.Retries-1, len(retryBackoffMs)-1)]
	jitter := 0.8 + rand.Float64()*0.4
	delay := time.Duration(float64(base)*jitter) * time.Millisecond

	time.AfterFunc(delay, func() {
		b.Enqueue(cmd)
	})
}

func (b *CommandBus) waitForGap(ticket int64) {
	b.mu.Lock()
	last, ok := b.lastSent[ticket]
	b.mu.Unlock()
	if !ok {
		return
	}
	elapsed := time.Since(last)
	if elapsed < minInterCommandGap {
		time.Sleep(minInterCommandGap - elapsed)
	}
}

func min3(a, b int) int {
	if a < b {
		return a
	}
	return b
}
