package app

import (
	"sort"
	"sync"
	"time"

	"poker-quiz-bot/internal/domain"
)

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	// StateIdle means no question has been posted, or the last one was cancelled.
	StateIdle SessionState = iota
	// StateOpen means a question is posted and accepting answers.
	StateOpen
	// StateClosed means the last question was revealed and awaits the next open.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Session is the mutable record of one chat's (or the broadcast group's) question.
// All methods are safe for concurrent use; each call is one atomic step.
type Session struct {
	key int64
	now func() time.Time

	mu         sync.Mutex
	question   *domain.Question
	preceding  *domain.Question
	lastStats  domain.RoundStats
	closed     bool
	generation uint64
	openedAt   time.Time
	answers    map[int64]int
	handles    map[int64]string

	// chats answers arrived from, which may include chats never posted to
	answerChats map[int64]struct{}

	version  uint64
	notified uint64
	observer func(version uint64, snap domain.SessionSnapshot)
}

// Round is the result of closing a session.
type Round struct {
	Question   domain.Question
	Stats      domain.RoundStats
	Handles    map[int64]string
	// Chats is every chat the round was posted to or answered from.
	Chats      []int64
	Generation uint64
	OpenedAt   time.Time
}

// AnswerOutcome is returned for an accepted answer.
type AnswerOutcome struct {
	Question   domain.Question
	Correct    bool
	Answered   int
	Generation uint64
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(key int64) *Session {
	return NewSessionWithClock(key, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(key int64, now func() time.Time) *Session {
	return &Session{
		key:     key,
		now:     now,
		answers:     make(map[int64]int),
		handles:     make(map[int64]string),
		answerChats: make(map[int64]struct{}),
	}
}

// SetObserver registers fn to receive the session state after every change.
// Calls happen outside the session lock and may arrive out of order; version
// increases with every change so observers can drop stale states.
func (s *Session) SetObserver(fn func(version uint64, snap domain.SessionSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.observer
	if fn == nil || s.version == s.notified {
		s.mu.Unlock()
		return
	}
	s.notified = s.version
	version, snap := s.version, s.snapshotLocked()
	s.mu.Unlock()
	fn(version, snap)
}

// Key identifies the session: a chat id, or the broadcast key.
func (s *Session) Key() int64 { return s.key }

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() SessionState {
	switch {
	case s.question != nil:
		return StateOpen
	case s.closed:
		return StateClosed
	default:
		return StateIdle
	}
}

// Open replaces whatever the session held with a new open question. The active
// question, if any, becomes the preceding one. Returns the new generation.
func (s *Session) Open(q domain.Question) uint64 {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(q)
}

func (s *Session) openLocked(q domain.Question) uint64 {
	if s.question != nil {
		prev := *s.question
		s.preceding = &prev
		s.lastStats = s.statsLocked()
	}
	s.question = &q
	s.closed = false
	s.generation++
	s.openedAt = s.now()
	s.version++
	clear(s.answers)
	clear(s.handles)
	clear(s.answerChats)
	return s.generation
}

// OpenIfIdle opens a question drawn by draw unless one is already outstanding,
// in which case the active question is returned and opened is false.
func (s *Session) OpenIfIdle(draw func() domain.Question) (q domain.Question, opened bool) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.question != nil {
		return *s.question, false
	}
	q = draw()
	s.openLocked(q)
	return q, true
}

// Advance closes the open question, if any, and opens a question drawn by
// draw as one atomic step, so no other open can slip in between. The closed
// round is returned for the caller to reveal.
func (s *Session) Advance(draw func() domain.Question) (round Round, closed bool, next domain.Question) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	round, closed = s.closeLocked()
	next = draw()
	s.openLocked(next)
	return round, closed, next
}

// Active returns the open question, if any.
func (s *Session) Active() (domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.question == nil {
		return domain.Question{}, false
	}
	return *s.question, true
}

// Preceding returns the last closed question and its final statistics.
func (s *Session) Preceding() (domain.Question, domain.RoundStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preceding == nil {
		return domain.Question{}, domain.RoundStats{}, false
	}
	return *s.preceding, s.lastStats, true
}

// Generation identifies the currently open round.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// RecordAnswer atomically checks and inserts a participant's answer for
// questionID. An answer for any question other than the open one is rejected
// with ErrSessionClosed.
func (s *Session) RecordAnswer(questionID int, userID int64, option int) (AnswerOutcome, error) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(questionID, userID, option)
}

// RecordAnswerInChat is RecordAnswer for an answer arriving from chatID. The
// chat joins the round's audience even if the question was never posted there.
func (s *Session) RecordAnswerInChat(chatID int64, questionID int, userID int64, option int) (AnswerOutcome, error) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.recordLocked(questionID, userID, option)
	if err == nil {
		s.answerChats[chatID] = struct{}{}
	}
	return out, err
}

func (s *Session) recordLocked(questionID int, userID int64, option int) (AnswerOutcome, error) {

	if _, ok := s.answers[userID]; ok {
		return AnswerOutcome{}, domain.ErrAlreadyAnswered
	}
	if s.question == nil || s.question.ID != questionID {
		return AnswerOutcome{}, domain.ErrSessionClosed
	}
	if !s.question.HasOption(option) {
		return AnswerOutcome{}, domain.ErrInvalidOption
	}
	s.answers[userID] = option
	s.version++
	return AnswerOutcome{
		Question:   *s.question,
		Correct:    option == s.question.CorrectOption,
		Answered:   len(s.answers),
		Generation: s.generation,
	}, nil
}

// Close reveals the open question. Closing a session that is not open is a no-op.
func (s *Session) Close() (Round, bool) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// CloseGeneration closes the session only if gen is still the open round.
func (s *Session) CloseGeneration(gen uint64) (Round, bool) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return Round{}, false
	}
	return s.closeLocked()
}

func (s *Session) closeLocked() (Round, bool) {
	if s.question == nil {
		return Round{}, false
	}
	q := *s.question
	round := Round{
		Question:   q,
		Stats:      s.statsLocked(),
		Handles:    copyHandles(s.handles),
		Chats:      s.audienceLocked(),
		Generation: s.generation,
		OpenedAt:   s.openedAt,
	}
	s.preceding = &q
	s.lastStats = round.Stats
	s.question = nil
	s.closed = true
	s.version++
	clear(s.answers)
	clear(s.handles)
	clear(s.answerChats)
	return round, true
}

// Cancel discards the open question without revealing it. The returned handles
// are the prompts that were outstanding.
func (s *Session) Cancel() (map[int64]string, bool) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.question == nil {
		return nil, false
	}
	handles := copyHandles(s.handles)
	s.question = nil
	s.closed = false
	s.version++
	clear(s.answers)
	clear(s.handles)
	clear(s.answerChats)
	return handles, true
}

// Present records the prompt handle posted to chatID for questionID and
// returns the handle it replaces. It reports false when questionID is no
// longer the open question.
func (s *Session) Present(chatID int64, questionID int, handle string) (string, bool) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.question == nil || s.question.ID != questionID {
		return "", false
	}
	prev := s.handles[chatID]
	s.handles[chatID] = handle
	s.version++
	return prev, true
}

// Chats returns, in ascending order, the chats the open question was posted
// to or answered from.
func (s *Session) Chats() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audienceLocked()
}

func (s *Session) audienceLocked() []int64 {
	seen := make(map[int64]struct{}, len(s.handles)+len(s.answerChats))
	for id := range s.handles {
		seen[id] = struct{}{}
	}
	for id := range s.answerChats {
		seen[id] = struct{}{}
	}
	chats := make([]int64, 0, len(seen))
	for id := range seen {
		chats = append(chats, id)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return chats
}

// ParticipationCount is the number of recorded answers.
func (s *Session) ParticipationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// CorrectCount is the number of recorded answers matching the correct option.
func (s *Session) CorrectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked().Correct
}

func (s *Session) statsLocked() domain.RoundStats {
	stats := domain.RoundStats{Participants: len(s.answers)}
	if s.question == nil {
		return stats
	}
	for _, opt := range s.answers {
		if opt == s.question.CorrectOption {
			stats.Correct++
		}
	}
	return stats
}

// IsIdle reports whether the session holds nothing worth keeping.
func (s *Session) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question == nil && s.preceding == nil
}

// Snapshot captures the persisted form of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		OpenAnswers:    make(map[int64]int, len(s.answers)),
		MessageHandles: copyHandles(s.handles),
	}
	if s.question != nil {
		snap.CurrentQuestionID = domain.IntPtr(s.question.ID)
	}
	if s.preceding != nil {
		snap.PrecedingQuestionID = domain.IntPtr(s.preceding.ID)
	}
	for user, opt := range s.answers {
		snap.OpenAnswers[user] = opt
	}
	return snap
}

// Restore re-attaches a persisted session. Question ids unknown to lookup are
// dropped together with their answers.
func (s *Session) Restore(snap domain.SessionSnapshot, lookup func(int) (domain.Question, bool)) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.question, s.preceding = nil, nil
	s.closed = false
	s.lastStats = domain.RoundStats{}
	s.version++
	clear(s.answers)
	clear(s.handles)
	clear(s.answerChats)

	if snap.PrecedingQuestionID != nil {
		if q, ok := lookup(*snap.PrecedingQuestionID); ok {
			s.preceding = &q
			s.closed = true
		}
	}
	if snap.CurrentQuestionID == nil {
		return
	}
	q, ok := lookup(*snap.CurrentQuestionID)
	if !ok {
		return
	}
	s.question = &q
	s.closed = false
	s.generation++
	s.openedAt = s.now()
	for user, opt := range snap.OpenAnswers {
		s.answers[user] = opt
	}
	for chat, handle := range snap.MessageHandles {
		s.handles[chat] = handle
	}
}

func copyHandles(in map[int64]string) map[int64]string {
	out := make(map[int64]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
