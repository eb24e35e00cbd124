package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"poker-quiz-bot/internal/domain"
	"poker-quiz-bot/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Mode selects the session granularity.
type Mode string

const (
	// ModePerChat draws an independent question for every chat.
	ModePerChat Mode = "per-chat"
	// ModeBroadcast shares one drawn question across all active chats.
	ModeBroadcast Mode = "shared-broadcast"
)

// BroadcastKey is the session key of the shared broadcast session.
const BroadcastKey int64 = 0

// ParseMode validates a configured mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModePerChat, ModeBroadcast:
		return Mode(raw), nil
	case "":
		return ModeBroadcast, nil
	}
	return "", fmt.Errorf("unknown quiz mode %q", raw)
}

// Options tunes a QuizService.
type Options struct {
	Mode Mode
	// BotMembers is subtracted from every participant count; defaults to 1.
	BotMembers int
	// FanOut bounds concurrent transport calls per broadcast; defaults to 8.
	FanOut int
	Logger zerolog.Logger
	Now    func() time.Time
}

// QuizService drives the session lifecycle and exposes the command surface
// used by the transport layer. Timer and on-demand triggers both go through it.
type QuizService struct {
	mode       Mode
	botMembers int
	fanOut     int
	now        func() time.Time
	log        zerolog.Logger

	bank      *QuestionBank
	sessions  SessionRepository
	ledger    ScoreLedger
	transport Transport
	gateway   *PersistenceGateway

	mu         sync.RWMutex
	chats      map[int64]struct{}
	dmUsers    map[int64]struct{}
	nextReveal func() (time.Time, bool)
}

func NewQuizService(bank *QuestionBank, sessions SessionRepository, ledger ScoreLedger, transport Transport, gateway *PersistenceGateway, opts Options) *QuizService {
	if opts.Mode == "" {
		opts.Mode = ModeBroadcast
	}
	if opts.BotMembers <= 0 {
		opts.BotMembers = 1
	}
	if opts.FanOut <= 0 {
		opts.FanOut = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &QuizService{
		mode:       opts.Mode,
		botMembers: opts.BotMembers,
		fanOut:     opts.FanOut,
		now:        opts.Now,
		log:        opts.Logger.With().Str("component", "quiz_service").Str("mode", string(opts.Mode)).Logger(),
		bank:       bank,
		sessions:   sessions,
		ledger:     ledger,
		transport:  transport,
		gateway:    gateway,
		chats:      make(map[int64]struct{}),
		dmUsers:    make(map[int64]struct{}),
	}
}

// SetNextReveal tells the service when the next scheduled reveal fires so
// answer feedback can say how long until the full explanation.
func (s *QuizService) SetNextReveal(fn func() (time.Time, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReveal = fn
}

// Mode returns the configured session granularity.
func (s *QuizService) Mode() Mode { return s.mode }

func (s *QuizService) sessionKey(chatID int64) int64 {
	if s.mode == ModeBroadcast {
		return BroadcastKey
	}
	return chatID
}

// Restore rehydrates chats, DM users, the exhaustion set and any in-flight
// session from the last snapshot.
func (s *QuizService) Restore(ctx context.Context) {
	snap := s.gateway.Restore(ctx)
	s.bank.RestoreUsed(snap.UsedQuestionIDs)

	s.mu.Lock()
	clear(s.chats)
	clear(s.dmUsers)
	for _, id := range snap.ActiveChats {
		s.chats[id] = struct{}{}
	}
	for _, id := range snap.DMEnabledUsers {
		s.dmUsers[id] = struct{}{}
	}
	s.mu.Unlock()

	if s.mode == ModeBroadcast {
		s.sessions.GetOrCreate(BroadcastKey).Restore(snap.SessionSnapshot, s.bank.Lookup)
	} else {
		for chatID, sess := range snap.ChatSessions {
			s.sessions.GetOrCreate(chatID).Restore(sess, s.bank.Lookup)
		}
	}

	s.log.Info().
		Int("active_chats", len(snap.ActiveChats)).
		Int("dm_users", len(snap.DMEnabledUsers)).
		Int("used_questions", len(snap.UsedQuestionIDs)).
		Msg("state restored")
}

// Snapshot captures the current process state.
func (s *QuizService) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		ActiveChats:     s.ActiveChats(),
		DMEnabledUsers:  s.dmEnabledUsers(),
		UsedQuestionIDs: s.bank.UsedIDs(),
		ChatSessions:    map[int64]domain.SessionSnapshot{},
	}
	for _, key := range s.sessions.Keys() {
		sess, ok := s.sessions.Get(key)
		if !ok {
			continue
		}
		if s.mode == ModeBroadcast {
			if key == BroadcastKey {
				snap.SessionSnapshot = sess.Snapshot()
			}
			continue
		}
		snap.ChatSessions[key] = sess.Snapshot()
	}
	return snap.Normalize()
}

func (s *QuizService) persist(ctx context.Context) {
	// failures are logged by the gateway
	_ = s.gateway.Snapshot(ctx, s.Snapshot)
}

// ActivateChat subscribes a chat to scheduled questions.
func (s *QuizService) ActivateChat(ctx context.Context, chatID int64) {
	s.mu.Lock()
	_, known := s.chats[chatID]
	s.chats[chatID] = struct{}{}
	s.mu.Unlock()
	if !known {
		s.log.Info().Int64("chat_id", chatID).Msg("chat activated")
		s.persist(ctx)
	}
}

// DeactivateChat unsubscribes a chat. In per-chat mode its open question is discarded.
func (s *QuizService) DeactivateChat(ctx context.Context, chatID int64) {
	s.mu.Lock()
	delete(s.chats, chatID)
	s.mu.Unlock()
	if s.mode == ModePerChat {
		if sess, ok := s.sessions.Get(chatID); ok {
			sess.Cancel()
		}
		s.sessions.DeleteIfIdle(chatID)
	}
	s.log.Info().Int64("chat_id", chatID).Msg("chat deactivated")
	s.persist(ctx)
}

// EnableDM marks a user as reachable through private messages.
func (s *QuizService) EnableDM(ctx context.Context, userID int64) {
	s.mu.Lock()
	_, known := s.dmUsers[userID]
	s.dmUsers[userID] = struct{}{}
	s.mu.Unlock()
	if !known {
		s.persist(ctx)
	}
}

// ActiveChats lists subscribed chats in ascending order.
func (s *QuizService) ActiveChats() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.chats)
}

func (s *QuizService) dmEnabledUsers() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.dmUsers)
}

func (s *QuizService) dmEnabled(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dmUsers[userID]
	return ok
}

// OpenOrShowSession posts the chat's open question, opening a new one only
// when none is outstanding.
func (s *QuizService) OpenOrShowSession(ctx context.Context, chatID int64) (domain.Question, error) {
	s.ActivateChat(ctx, chatID)

	sess := s.sessions.GetOrCreate(s.sessionKey(chatID))
	q, opened := sess.OpenIfIdle(s.bank.DrawNext)
	if opened {
		metrics.SessionsOpened.WithLabelValues("on_demand").Inc()
		s.log.Info().Int64("chat_id", chatID).Int("question_id", q.ID).Msg("question opened on demand")
		s.persist(ctx)
	}

	if err := s.present(ctx, sess, chatID, q); err != nil {
		return q, err
	}
	s.persist(ctx)
	return q, nil
}

// ScheduledOpen is the recurring open trigger. A still-open question is
// revealed first, then a new one is drawn and posted to every active chat.
func (s *QuizService) ScheduledOpen(ctx context.Context) {
	defer s.recoverTrigger("scheduled_open")

	if s.mode == ModeBroadcast {
		s.advance(ctx, s.sessions.GetOrCreate(BroadcastKey), s.ActiveChats())
		return
	}
	s.fanOutEach(ctx, s.ActiveChats(), func(ctx context.Context, chatID int64) error {
		s.advance(ctx, s.sessions.GetOrCreate(chatID), []int64{chatID})
		return nil
	})
}

func (s *QuizService) advance(ctx context.Context, sess *Session, chats []int64) {
	round, closed, q := sess.Advance(s.bank.DrawNext)
	if closed {
		s.reveal(ctx, sess, round, "scheduled_open")
	}
	metrics.SessionsOpened.WithLabelValues("scheduled").Inc()
	s.log.Info().Int64("session", sess.Key()).Int("question_id", q.ID).Int("chats", len(chats)).Msg("question opened")
	s.persist(ctx)

	failed := s.fanOutEach(ctx, chats, func(ctx context.Context, chatID int64) error {
		return s.present(ctx, sess, chatID, q)
	})
	s.dropChats(ctx, failed)
	s.persist(ctx)
}

// ScheduledClose is the recurring reveal trigger.
func (s *QuizService) ScheduledClose(ctx context.Context) {
	defer s.recoverTrigger("scheduled_close")

	keys := []int64{BroadcastKey}
	if s.mode == ModePerChat {
		keys = s.sessions.Keys()
	}
	s.fanOutEach(ctx, keys, func(ctx context.Context, key int64) error {
		sess, ok := s.sessions.Get(key)
		if !ok {
			return nil
		}
		if round, ok := sess.Close(); ok {
			s.reveal(ctx, sess, round, "scheduled")
		}
		return nil
	})
}

func (s *QuizService) reveal(ctx context.Context, sess *Session, round Round, reason string) {
	metrics.SessionsClosed.WithLabelValues(reason).Inc()
	s.persist(ctx)

	table, _ := s.bank.LookupReferenceTable(round.Question)
	text := FormatExplanation(round.Question, round.Stats, table)

	chats := round.Chats
	if len(chats) == 0 && s.mode == ModePerChat {
		chats = []int64{sess.Key()}
	}

	failed := s.fanOutEach(ctx, chats, func(ctx context.Context, chatID int64) error {
		return s.sendText(ctx, chatID, text, "send_explanation")
	})
	s.dropChats(ctx, failed)

	s.log.Info().
		Int64("session", sess.Key()).
		Int("question_id", round.Question.ID).
		Str("reason", reason).
		Int("participants", round.Stats.Participants).
		Int("correct", round.Stats.Correct).
		Dur("open_for", s.now().Sub(round.OpenedAt)).
		Msg("question revealed")
}

// RecordAnswerRequest records a participant's answer for the chat's open
// question, updates the score ledger and closes the round early once every
// addressable participant has answered.
func (s *QuizService) RecordAnswerRequest(ctx context.Context, chatID, userID int64, questionID, option int) (domain.AnswerResult, error) {
	sess, ok := s.sessions.Get(s.sessionKey(chatID))
	if !ok {
		metrics.AnswersRecorded.WithLabelValues("closed").Inc()
		return domain.AnswerResult{}, domain.ErrSessionClosed
	}

	outcome, err := sess.RecordAnswerInChat(chatID, questionID, userID, option)
	if err != nil {
		metrics.AnswersRecorded.WithLabelValues(rejectionLabel(err)).Inc()
		s.log.Debug().Err(err).Int64("chat_id", chatID).Int64("user_id", userID).Int("question_id", questionID).Msg("answer rejected")
		return domain.AnswerResult{}, err
	}
	if outcome.Correct {
		metrics.AnswersRecorded.WithLabelValues("correct").Inc()
	} else {
		metrics.AnswersRecorded.WithLabelValues("wrong").Inc()
	}

	record, err := s.ledger.RecordAnswer(ctx, domain.AnswerEvent{
		UserID:      userID,
		DisplayName: s.friendlyName(ctx, userID),
		QuestionID:  questionID,
		Option:      option,
		Correct:     outcome.Correct,
		At:          s.now(),
	})
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Int("question_id", questionID).Msg("score ledger update failed")
	}
	s.persist(ctx)

	s.log.Info().
		Int64("chat_id", chatID).
		Int64("user_id", userID).
		Int("question_id", questionID).
		Bool("correct", outcome.Correct).
		Msg("answer recorded")

	s.sendFeedback(ctx, userID, outcome.Question, option, outcome.Correct)
	s.closeIfEveryoneAnswered(ctx, sess, chatID, outcome.Generation)

	return domain.AnswerResult{
		QuestionID:    questionID,
		Option:        option,
		Correct:       outcome.Correct,
		CorrectOption: outcome.Question.CorrectOption,
		Score:         record,
	}, nil
}

// closeIfEveryoneAnswered asks the transport for participant counts without
// holding the session lock, then re-checks that the same round is still open.
func (s *QuizService) closeIfEveryoneAnswered(ctx context.Context, sess *Session, chatID int64, gen uint64) {
	chats := []int64{chatID}
	if s.mode == ModeBroadcast {
		// every chat that saw the question or answered it, chatID included
		if audience := sess.Chats(); len(audience) > 0 {
			chats = audience
		}
	}

	addressable := 0
	for _, id := range chats {
		n, err := s.transport.ParticipantCount(ctx, id)
		if err != nil {
			metrics.TransportFailures.WithLabelValues("participant_count").Inc()
			s.log.Warn().Err(err).Int64("chat_id", id).Msg("participant count unavailable, skipping early close")
			return
		}
		addressable += max(n-s.botMembers, 0)
	}
	if addressable == 0 {
		return
	}

	if sess.Generation() != gen || sess.ParticipationCount() < addressable {
		return
	}
	if round, ok := sess.CloseGeneration(gen); ok {
		s.reveal(ctx, sess, round, "early")
	}
}

// CancelSession discards the chat's open question without an explanation.
func (s *QuizService) CancelSession(ctx context.Context, chatID int64) bool {
	sess, ok := s.sessions.Get(s.sessionKey(chatID))
	if !ok {
		return false
	}
	handles, ok := sess.Cancel()
	if !ok {
		return false
	}
	metrics.SessionsClosed.WithLabelValues("cancelled").Inc()
	s.log.Info().Int64("chat_id", chatID).Msg("question cancelled")
	s.persist(ctx)

	for id, handle := range handles {
		s.deleteMessage(ctx, id, handle)
	}
	return true
}

// RequestExplanation sends the explanation of the chat's last closed question.
func (s *QuizService) RequestExplanation(ctx context.Context, chatID int64) (string, error) {
	sess, ok := s.sessions.Get(s.sessionKey(chatID))
	if !ok {
		return "", domain.ErrNoPrecedingQuestion
	}
	q, stats, ok := sess.Preceding()
	if !ok {
		return "", domain.ErrNoPrecedingQuestion
	}
	table, _ := s.bank.LookupReferenceTable(q)
	text := FormatExplanation(q, stats, table)
	if err := s.sendText(ctx, chatID, text, "send_explanation"); err != nil {
		return text, err
	}
	return text, nil
}

// Leaderboard returns the top scorers; limit defaults to 10.
func (s *QuizService) Leaderboard(ctx context.Context, limit int) ([]domain.ScoreRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.ledger.Leaderboard(ctx, limit)
}

// UserStats returns a user's aggregate, reporting false if they never answered.
func (s *QuizService) UserStats(ctx context.Context, userID int64) (domain.ScoreRecord, bool, error) {
	return s.ledger.UserStats(ctx, userID)
}

func (s *QuizService) present(ctx context.Context, sess *Session, chatID int64, q domain.Question) error {
	handle, err := s.transport.SendChoicePrompt(ctx, chatID, Prompt{
		QuestionID: q.ID,
		Text:       FormatPrompt(q),
		Options:    q.Options,
	})
	if err != nil {
		metrics.TransportFailures.WithLabelValues("send_prompt").Inc()
		s.log.Warn().Err(err).Int64("chat_id", chatID).Int("question_id", q.ID).Msg("failed to post question")
		return fmt.Errorf("%w: post question to chat %d: %v", domain.ErrTransport, chatID, err)
	}

	prev, ok := sess.Present(chatID, q.ID, handle)
	if !ok {
		// the round ended while the prompt was in flight
		s.deleteMessage(ctx, chatID, handle)
		return nil
	}
	if prev != "" && prev != handle {
		s.deleteMessage(ctx, chatID, prev)
	}
	return nil
}

func (s *QuizService) sendText(ctx context.Context, chatID int64, text, op string) error {
	if err := s.transport.SendText(ctx, chatID, text); err != nil {
		metrics.TransportFailures.WithLabelValues(op).Inc()
		s.log.Warn().Err(err).Int64("chat_id", chatID).Str("op", op).Msg("failed to send message")
		return fmt.Errorf("%w: %s to chat %d: %v", domain.ErrTransport, op, chatID, err)
	}
	return nil
}

func (s *QuizService) deleteMessage(ctx context.Context, chatID int64, handle string) {
	if err := s.transport.DeleteMessage(ctx, chatID, handle); err != nil {
		metrics.TransportFailures.WithLabelValues("delete_message").Inc()
		s.log.Debug().Err(err).Int64("chat_id", chatID).Str("handle", handle).Msg("failed to delete message")
	}
}

func (s *QuizService) sendFeedback(ctx context.Context, userID int64, q domain.Question, option int, correct bool) {
	if !s.dmEnabled(userID) {
		return
	}
	text := FormatFeedback(q, option, correct) + "\n\n" + s.revealNotice()
	if err := s.sendText(ctx, userID, text, "send_feedback"); err != nil {
		s.mu.Lock()
		delete(s.dmUsers, userID)
		s.mu.Unlock()
		s.persist(ctx)
	}
}

func (s *QuizService) revealNotice() string {
	s.mu.RLock()
	next := s.nextReveal
	s.mu.RUnlock()
	if next != nil {
		if at, ok := next(); ok {
			if d := at.Sub(s.now()); d > 0 {
				return fmt.Sprintf("The full explanation is revealed in %s.", FormatTimeUntil(d))
			}
		}
	}
	return "The full explanation is revealed before the next quiz."
}

func (s *QuizService) friendlyName(ctx context.Context, userID int64) string {
	name, err := s.transport.ResolveFriendlyName(ctx, userID)
	if err != nil || name == "" {
		return fmt.Sprintf("User%d", userID)
	}
	return name
}

// dropChats removes chats whose delivery failed from the active set.
func (s *QuizService) dropChats(ctx context.Context, failed []int64) {
	if len(failed) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range failed {
		delete(s.chats, id)
	}
	s.mu.Unlock()
	s.log.Warn().Ints64("chat_ids", failed).Msg("dropped unreachable chats")
	s.persist(ctx)
}

// fanOutEach runs fn for every id with bounded concurrency and returns the ids
// whose call failed or panicked.
func (s *QuizService) fanOutEach(ctx context.Context, ids []int64, fn func(context.Context, int64) error) []int64 {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []int64
	)
	g.SetLimit(s.fanOut)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.safeCall(ctx, id, fn); err != nil {
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return failed
}

func (s *QuizService) safeCall(ctx context.Context, id int64, fn func(context.Context, int64) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Int64("id", id).Msg("recovered from panic")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, id)
}

func (s *QuizService) recoverTrigger(trigger string) {
	if r := recover(); r != nil {
		s.log.Error().Interface("panic", r).Str("trigger", trigger).Msg("trigger failed")
	}
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return "duplicate"
	case errors.Is(err, domain.ErrInvalidOption):
		return "invalid"
	default:
		return "closed"
	}
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
