package trailer

import (
	"fmt"
	"sync"
)

const (
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

// StatusDone is the only status that marks a trailer as safe to upload.
const StatusDone = "Done"

const defaultFeedSize = 50

// Message is one entry on the status channel.
type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func Info(text string) Message {
	return Message{Level: LevelInfo, Text: text}
}

func Errorf(format string, args ...any) Message {
	return Message{Level: LevelError, Text: fmt.Sprintf(format, args...)}
}

func (m Message) String() string {
	return m.Level + ": " + m.Text
}

func (m Message) IsError() bool {
	return m.Level == LevelError
}

// Feed keeps the most recent status messages and fans new ones out to
// subscribers. Slow subscribers miss messages rather than block publishers.
type Feed struct {
	mu     sync.Mutex
	size   int
	recent []Message
	subs   map[int]chan Message
	nextID int
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = defaultFeedSize
	}
	return &Feed{size: size, subs: make(map[int]chan Message)}
}

func (f *Feed) Publish(m Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recent = append(f.recent, m)
	if len(f.recent) > f.size {
		f.recent = f.recent[len(f.recent)-f.size:]
	}
	for _, ch := range f.subs {
		select {
		case ch <- m:
		default:
		}
	}
}

// Recent returns buffered messages, oldest first.
func (f *Feed) Recent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.recent))
	copy(out, f.recent)
	return out
}

// Subscribe returns a channel of future messages and a func that closes it.
func (f *Feed) Subscribe() (<-chan Message, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan Message, 16)
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}
