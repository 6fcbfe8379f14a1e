package store

import (
	"sync"

	"battleboats/models"
)

// Broker fans committed match snapshots out to subscribers. Each subscriber
// holds at most one pending snapshot; an unread one is replaced only by a
// newer version, so publishers never block on slow readers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	ch     chan *models.Match
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscription]struct{})}
}

func (b *Broker) Subscribe(matchID string) (<-chan *models.Match, func()) {
	sub := &subscription{ch: make(chan *models.Match, 1)}

	b.mu.Lock()
	if b.subs[matchID] == nil {
		b.subs[matchID] = make(map[*subscription]struct{})
	}
	b.subs[matchID][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[matchID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(b.subs, matchID)
				}
			}
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

func (b *Broker) Publish(m *models.Match) {
	if m == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[m.ID] {
		if sub.closed {
			continue
		}
		select {
		case pending := <-sub.ch:
			// commits can publish out of order; never replace a newer snapshot
			if pending.Version >= m.Version {
				sub.ch <- pending
				continue
			}
		default:
		}
		sub.ch <- m.Clone()
	}
}

// Close ends every subscription of a match.
func (b *Broker) Close(matchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[matchID] {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	delete(b.subs, matchID)
}
