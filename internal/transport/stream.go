package transport

import (
	"encoding/json"
	"sync"
)

// stream is one live DDP subscription. Events are queued by the read pump
// without blocking and handed to fn in order on the stream's own goroutine.
type stream struct {
	id         string
	collection string
	key        string
	fn         func(json.RawMessage)

	mu    sync.Mutex
	queue []json.RawMessage
	wake  chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	onStop   func()
}

func newStream(id, name, key string, fn func(json.RawMessage)) *stream {
	return &stream{
		id:         id,
		collection: streamCollection(name),
		key:        key,
		fn:         fn,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
}

func (s *stream) matches(collection, key string) bool {
	return s.collection == collection && s.key == key
}

func (s *stream) push(args []json.RawMessage) {
	s.mu.Lock()
	s.queue = append(s.queue, args...)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *stream) next() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, false
	}

	arg := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return arg, true
}

func (s *stream) run() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}

		for {
			arg, ok := s.next()
			if !ok {
				break
			}

			select {
			case <-s.stop:
				return
			default:
			}

			s.fn(arg)
		}
	}
}

// Stop is idempotent.
func (s *stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)

		s.mu.Lock()
		s.queue = nil
		s.mu.Unlock()

		if s.onStop != nil {
			s.onStop()
		}
	})
}

func (s *stream) Done() <-chan struct{} {
	return s.stop
}

func (s *stream) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}
