package domain

import "sort"

// SessionSnapshot is the persisted form of one session.
type SessionSnapshot struct {
	CurrentQuestionID   *int             `json:"current_question_id"`
	PrecedingQuestionID *int             `json:"preceding_question_id"`
	OpenAnswers         map[int64]int    `json:"open_answers"`
	MessageHandles      map[int64]string `json:"message_handles,omitempty"`
}

// Snapshot is the process state written after every state-changing event.
// The embedded session holds the shared broadcast session; per-chat sessions
// live in ChatSessions.
type Snapshot struct {
	ActiveChats     []int64 `json:"active_chats"`
	DMEnabledUsers  []int64 `json:"dm_enabled_users"`
	SessionSnapshot
	UsedQuestionIDs []int                     `json:"used_question_ids"`
	ChatSessions    map[int64]SessionSnapshot `json:"chat_sessions,omitempty"`
}

// EmptySnapshot is the default state used when nothing was persisted.
func EmptySnapshot() Snapshot {
	return Snapshot{}.Normalize()
}

// Normalize sorts the id lists and replaces nil containers with empty ones so
// that equal states compare equal after an encode/decode round trip.
func (s Snapshot) Normalize() Snapshot {
	s.ActiveChats = sortedInt64(s.ActiveChats)
	s.DMEnabledUsers = sortedInt64(s.DMEnabledUsers)
	s.SessionSnapshot = s.SessionSnapshot.Normalize()
	ids := append([]int{}, s.UsedQuestionIDs...)
	sort.Ints(ids)
	s.UsedQuestionIDs = ids
	chats := make(map[int64]SessionSnapshot, len(s.ChatSessions))
	for id, sess := range s.ChatSessions {
		chats[id] = sess.Normalize()
	}
	s.ChatSessions = chats
	return s
}

// Normalize replaces nil maps with empty ones.
func (s SessionSnapshot) Normalize() SessionSnapshot {
	if s.OpenAnswers == nil {
		s.OpenAnswers = map[int64]int{}
	}
	if s.MessageHandles == nil {
		s.MessageHandles = map[int64]string{}
	}
	return s
}

func sortedInt64(in []int64) []int64 {
	out := append([]int64{}, in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IntPtr is a helper for optional question ids.
func IntPtr(v int) *int { return &v }
