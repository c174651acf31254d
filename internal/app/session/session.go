// Package session holds the card currently presented at the kiosk. It is a
// single slot: a newer read overwrites the older one.
package session

import "sync"

type CardSession struct {
	mu   sync.Mutex
	card string
}

func New() *CardSession {
	return &CardSession{}
}

func (s *CardSession) Present(card string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.card = card
}

func (s *CardSession) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.card, s.card != ""
}

func (s *CardSession) Consume() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card := s.card
	s.card = ""
	return card, card != ""
}

// ConsumeIf clears the slot only while it still holds card.
func (s *CardSession) ConsumeIf(card string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if card == "" || s.card != card {
		return false
	}
	s.card = ""
	return true
}
