package worker

import "github.com/MrWong99/sonoscribe/internal/queue"

// Emitter receives worker messages. Emit must not block for long; the
// worker calls it from its control loop.
type Emitter interface {
	Emit(Message)
}

// EmitterFunc adapts a function to [Emitter].
type EmitterFunc func(Message)

// Emit implements [Emitter].
func (f EmitterFunc) Emit(m Message) { f(m) }

// Mailbox is an unbounded FIFO of messages. Put never blocks the producer;
// the display side collects everything pending with Drain.
type Mailbox struct {
	q *queue.Queue[Message]
}

// NewMailbox returns an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{q: queue.New[Message]()}
}

// Put appends m.
func (b *Mailbox) Put(m Message) { b.q.Enqueue(m) }

// Emit implements [Emitter].
func (b *Mailbox) Emit(m Message) { b.Put(m) }

// Drain removes and returns every pending message in arrival order.
func (b *Mailbox) Drain() []Message { return b.q.Drain() }

// Len returns the number of pending messages.
func (b *Mailbox) Len() int { return b.q.Len() }

// Clear discards every pending message.
func (b *Mailbox) Clear() int { return b.q.Clear() }
