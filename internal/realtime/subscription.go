package realtime

import "sync"

// subscription is the delivery pipeline shared by all Store implementations.
// Snapshots are queued in arrival order and forwarded to the Updates channel
// by a single dispatcher goroutine. Close stops the transport, waits for the
// dispatcher to exit, and only then returns, so callers never observe a
// delivery after Close.
type subscription struct {
	out  chan Snapshot
	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	mu     sync.Mutex
	queue  []Snapshot
	closed bool

	stop func() // detaches the transport-level listener
	once sync.Once
}

func newSubscription(stop func()) *subscription {
	s := &subscription{
		out:  make(chan Snapshot),
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		stop: stop,
	}
	go s.run()
	return s
}

func (s *subscription) run() {
	defer close(s.done)
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
			case <-s.quit:
				return
			}
			s.mu.Lock()
		}
		snap := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- snap:
		case <-s.quit:
			return
		}
	}
}

// deliver enqueues a snapshot for the consumer. Snapshots arriving after
// Close are dropped; that is how late in-flight store reads are discarded.
func (s *subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) Updates() <-chan Snapshot {
	return s.out
}

func (s *subscription) Close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.quit)
		<-s.done
	})
}
