package memory

import (
	"context"
	"sort"
	"sync"

	"qrquest/internal/domain"
)

type answerKey struct {
	participantID int64
	questionID    string
}

// Store is an in-memory implementation of app.Store. A single mutex serializes
// every mutation, which makes duplicate checks and rank assignment atomic.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	nextAnswerID int64
	byIdentity   map[string]int64
	participants map[int64]*domain.Participant
	answers      map[answerKey]domain.Answer
	perUser      map[int64][]domain.Answer
	ranked       int
	draws        []domain.Draw
}

func NewStore() *Store {
	return &Store{
		byIdentity:   make(map[string]int64),
		participants: make(map[int64]*domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
		perUser:      make(map[int64][]domain.Answer),
	}
}

func (s *Store) Participant(_ context.Context, identity string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIdentity[identity]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return clone(s.participants[id]), nil
}

func (s *Store) Register(_ context.Context, p domain.Participant) (domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byIdentity[p.Identity]; ok {
		return clone(s.participants[id]), false, nil
	}
	s.nextID++
	p.ID = s.nextID
	p.CorrectCount = 0
	p.CompletionRank = nil
	s.byIdentity[p.Identity] = p.ID
	s.participants[p.ID] = &p
	return clone(&p), true, nil
}

func (s *Store) CountParticipants(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants), nil
}

// Participants returns everyone ordered by registration.
func (s *Store) Participants(_ context.Context) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) HasAnswer(_ context.Context, participantID int64, questionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answers[answerKey{participantID, questionID}]
	return ok, nil
}

func (s *Store) RecordAnswer(_ context.Context, answer domain.Answer, catalogSize int) (domain.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[answer.ParticipantID]
	if !ok {
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}
	key := answerKey{answer.ParticipantID, answer.QuestionID}
	if _, dup := s.answers[key]; dup {
		return domain.AnswerResult{}, domain.Reject(domain.ReasonDuplicateAnswer)
	}

	s.nextAnswerID++
	answer.ID = s.nextAnswerID
	s.answers[key] = answer
	s.perUser[p.ID] = append(s.perUser[p.ID], answer)

	if answer.Correct {
		p.CorrectCount++
	}
	p.LastActivityAt = answer.AnsweredAt

	answered := len(s.perUser[p.ID])
	completed := false
	if answered == catalogSize && p.CompletionRank == nil {
		s.ranked++
		rank := s.ranked
		p.CompletionRank = &rank
		completed = true
	}

	return domain.AnswerResult{
		Answer:      answer,
		Participant: clone(p),
		Answered:    answered,
		CatalogSize: catalogSize,
		Completed:   completed,
	}, nil
}

func (s *Store) Answers(_ context.Context, participantID int64) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answers := s.perUser[participantID]
	out := make([]domain.Answer, len(answers))
	copy(out, answers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AnsweredAt.Before(out[j].AnsweredAt) })
	return out, nil
}

func (s *Store) Eligible(_ context.Context, catalogSize int) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Participant
	for id, p := range s.participants {
		if len(s.perUser[id]) == catalogSize {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) RecordDraw(_ context.Context, draw domain.Draw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[draw.ParticipantID]; !ok {
		return domain.ErrParticipantNotFound
	}
	s.draws = append(s.draws, draw)
	return nil
}

// Draws returns the recorded winner draws in order.
func (s *Store) Draws() []domain.Draw {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Draw, len(s.draws))
	copy(out, s.draws)
	return out
}

func (s *Store) Stats(_ context.Context) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Stats{
		Participants: len(s.participants),
		Finished:     s.ranked,
		Answers:      len(s.answers),
	}, nil
}

func clone(p *domain.Participant) domain.Participant {
	out := *p
	if p.CompletionRank != nil {
		rank := *p.CompletionRank
		out.CompletionRank = &rank
	}
	return out
}
