package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"poker-quiz-bot/internal/app"
)

type sentPrompt struct {
	chatID int64
	handle string
	prompt app.Prompt
}

type sentText struct {
	chatID int64
	text   string
}

// fakeTransport records every call and fails on demand per chat.
type fakeTransport struct {
	mu         sync.Mutex
	seq        int
	members    map[int64]int
	names      map[int64]string
	failPrompt map[int64]bool
	failText   map[int64]bool
	failCount  bool
	prompts    []sentPrompt
	texts      []sentText
	deleted    []string

	// textGate, when set, holds the next SendText until released
	textGate *gate
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

var errUnreachable = errors.New("chat unreachable")

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		members:    map[int64]int{},
		names:      map[int64]string{},
		failPrompt: map[int64]bool{},
		failText:   map[int64]bool{},
	}
}

func (f *fakeTransport) SendChoicePrompt(_ context.Context, chatID int64, prompt app.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrompt[chatID] {
		return "", errUnreachable
	}
	f.seq++
	handle := fmt.Sprintf("msg-%d", f.seq)
	f.prompts = append(f.prompts, sentPrompt{chatID: chatID, handle: handle, prompt: prompt})
	return handle, nil
}

// holdNextText makes the next SendText block until release is closed;
// entered is closed once that call is blocked.
func (f *fakeTransport) holdNextText() (entered <-chan struct{}, release chan<- struct{}) {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.textGate = g
	f.mu.Unlock()
	return g.entered, g.release
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	if g := f.textGate; g != nil {
		f.textGate = nil
		f.mu.Unlock()
		close(g.entered)
		<-g.release
		f.mu.Lock()
	}
	defer f.mu.Unlock()
	if f.failText[chatID] {
		return errUnreachable
	}
	f.texts = append(f.texts, sentText{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, _ int64, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, handle)
	return nil
}

func (f *fakeTransport) ParticipantCount(_ context.Context, chatID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCount {
		return 0, errUnreachable
	}
	return f.members[chatID], nil
}

func (f *fakeTransport) ResolveFriendlyName(_ context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.names[userID]
	if !ok {
		return "", errUnreachable
	}
	return name, nil
}

func (f *fakeTransport) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, t := range f.texts {
		if t.chatID == chatID {
			out = append(out, t.text)
		}
	}
	return out
}

func (f *fakeTransport) promptsTo(chatID int64) []sentPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentPrompt
	for _, p := range f.prompts {
		if p.chatID == chatID {
			out = append(out, p)
		}
	}
	return out
}
