package chat

import (
	"sync"

	"github.com/cbegin/jianpu-go/internal/scheduler"
)

const noID = "no-id"

// Session is the state of one listener: which message played last, whether
// audio has been unlocked by a user gesture, the request waiting for that
// unlock, and the phrase each channel's control lines refer to.
type Session struct {
	// Self is the sender name of this process; its own messages are ignored.
	Self string

	mu         sync.Mutex
	lastPlayed string
	unlocked   bool
	queued     *scheduler.Request
	pending    map[string]scheduler.Request
}

func NewSession(self string) *Session {
	return &Session{Self: self, pending: make(map[string]scheduler.Request)}
}

// Observe inspects msg and returns the request it asks to play. The same
// message id never plays twice; a message without an id counts as "no-id".
// Control lines need an earlier notation in the same channel.
func (s *Session) Observe(msg Message) (scheduler.Request, bool, error) {
	if s.Self != "" && msg.Sender == s.Self {
		return scheduler.Request{}, false, nil
	}
	ex, ok, err := Extract(msg.Text)
	if err != nil || !ok {
		return scheduler.Request{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := msg.ID
	if id == "" {
		id = noID
	}
	if msg.ID != "" && msg.ID == s.lastPlayed {
		return scheduler.Request{}, false, nil
	}

	req := ex.Request
	if ex.Kind == KindControls {
		base, ok := s.pending[msg.Channel]
		if !ok {
			return scheduler.Request{}, false, ErrNoPending
		}
		req, err = ex.Controls.Apply(base)
		if err != nil {
			return scheduler.Request{}, false, err
		}
	}
	s.pending[msg.Channel] = req
	s.lastPlayed = id
	return req, true, nil
}

// Pending returns the phrase control lines in channel would modify.
func (s *Session) Pending(channel string) (scheduler.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[channel]
	return req, ok
}

func (s *Session) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

func (s *Session) MarkUnlocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked = true
}

// Queue parks req until the next unlock, replacing any earlier one.
func (s *Session) Queue(req scheduler.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = &req
}

// TakeQueued returns and clears the parked request.
func (s *Session) TakeQueued() (scheduler.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queued == nil {
		return scheduler.Request{}, false
	}
	req := *s.queued
	s.queued = nil
	return req, true
}
