package logging

import (
	"container/ring"
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultBufferSize is how many recent log lines the broadcaster retains
// for newly-subscribing readers.
const DefaultBufferSize = 500

var broadcaster = newLogBroadcaster(DefaultBufferSize)

// broadcastWarnWriter receives the "subscriber blocked" diagnostic; a
// package var so tests can swap it, matching the teacher's pattern.
var broadcastWarnWriter io.Writer = os.Stderr

// LogBroadcaster fans written log lines out to subscriber channels and
// keeps a ring buffer so a new subscriber can replay recent history.
// A subscriber whose channel is full has the line dropped, not the
// writer blocked — logging must never back-pressure the hot path.
type LogBroadcaster struct {
	mu          sync.Mutex
	buffer      *ring.Ring
	subscribers map[string]chan string
}

func newLogBroadcaster(size int) *LogBroadcaster {
	return &LogBroadcaster{
		buffer:      ring.New(size),
		subscribers: make(map[string]chan string),
	}
}

// Write implements io.Writer so the broadcaster can be composed into
// zerolog's output via io.MultiWriter.
func (b *LogBroadcaster) Write(p []byte) (int, error) {
	line := string(p)

	b.mu.Lock()
	b.buffer.Value = line
	b.buffer = b.buffer.Next()
	for id, ch := range b.subscribers {
		select {
		case ch <- line:
		default:
			fmt.Fprintf(broadcastWarnWriter,
				"reason=subscriber_blocked subscriber_id=%s action=drop_message\n", id)
		}
	}
	b.mu.Unlock()

	return len(p), nil
}

// Subscribe registers a new reader identified by id and returns a
// channel of subsequently-written lines. Call Unsubscribe when done.
func (b *LogBroadcaster) Subscribe(id string) <-chan string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan string, 256)
	b.subscribers[id] = ch
	return ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *LogBroadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Recent returns up to the buffer's capacity of most recently written
// lines (DefaultBufferSize for the process-wide broadcaster), oldest first.
func (b *LogBroadcaster) Recent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var lines []string
	b.buffer.Do(func(v any) {
		if v == nil {
			return
		}
		if s, ok := v.(string); ok {
			lines = append(lines, s)
		}
	})
	return lines
}

// Subscribe registers a reader on the process-wide broadcaster.
func Subscribe(id string) <-chan string { return broadcaster.Subscribe(id) }

// Unsubscribe removes a reader from the process-wide broadcaster.
func Unsubscribe(id string) { broadcaster.Unsubscribe(id) }

// Recent returns recently-logged lines from the process-wide broadcaster.
func Recent() []string { return broadcaster.Recent() }
