package poster

import (
	"context"
	"strconv"
	"sync"

	"github.com/abdulachik/autoposter/internal/telegram"
)

type sendCall struct {
	Method  string
	ChatID  string
	Text    string
	Paths   []string
	Types   []string
	Caption []string
	ReplyTo *telegram.ReplyParameters
	Silent  bool
}

// fakeTransport records every send and hands out increasing message ids per chat.
type fakeTransport struct {
	mu     sync.Mutex
	calls  []sendCall
	nextID map[string]int64
	chats  map[string]telegram.Chat

	// fail, when set, decides whether a call is rejected.
	fail func(call sendCall) error

	getMeErr error

	// chatErrs is returned by successive GetChat calls before chats is used.
	chatErrs    []error
	chatLookups int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nextID: make(map[string]int64),
		chats:  make(map[string]telegram.Chat),
	}
}

func (f *fakeTransport) record(call sendCall, n int) ([]telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(call); err != nil {
			return nil, err
		}
	}
	f.calls = append(f.calls, call)

	chatID, _ := strconv.ParseInt(call.ChatID, 10, 64)
	msgs := make([]telegram.Message, n)
	for i := range msgs {
		f.nextID[call.ChatID]++
		msgs[i] = telegram.Message{MessageID: f.nextID[call.ChatID], Chat: telegram.Chat{ID: chatID}}
	}
	return msgs, nil
}

func (f *fakeTransport) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

func (f *fakeTransport) CallsTo(chatID string) []sendCall {
	var out []sendCall
	for _, c := range f.Calls() {
		if c.ChatID == chatID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) GetMe(ctx context.Context) (*telegram.User, error) {
	if f.getMeErr != nil {
		return nil, f.getMeErr
	}
	return &telegram.User{ID: 1, IsBot: true, Username: "test_bot"}, nil
}

func (f *fakeTransport) GetChat(ctx context.Context, chatID string) (*telegram.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatLookups++
	if len(f.chatErrs) > 0 {
		err := f.chatErrs[0]
		f.chatErrs = f.chatErrs[1:]
		return nil, err
	}
	chat := f.chats[chatID]
	return &chat, nil
}

func (f *fakeTransport) SendText(ctx context.Context, chatID, text string, opts telegram.SendOptions) (telegram.Message, error) {
	msgs, err := f.record(sendCall{Method: "sendMessage", ChatID: chatID, Text: text, ReplyTo: opts.ReplyTo, Silent: opts.Silent}, 1)
	if err != nil {
		return telegram.Message{}, err
	}
	return msgs[0], nil
}

func (f *fakeTransport) single(method, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error) {
	msgs, err := f.record(sendCall{
		Method:  method,
		ChatID:  chatID,
		Paths:   []string{path},
		Caption: []string{caption},
		ReplyTo: opts.ReplyTo,
		Silent:  opts.Silent,
	}, 1)
	if err != nil {
		return telegram.Message{}, err
	}
	return msgs[0], nil
}

func (f *fakeTransport) SendPhoto(ctx context.Context, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error) {
	return f.single("sendPhoto", chatID, path, caption, opts)
}

func (f *fakeTransport) SendVideo(ctx context.Context, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error) {
	return f.single("sendVideo", chatID, path, caption, opts)
}

func (f *fakeTransport) SendDocument(ctx context.Context, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error) {
	return f.single("sendDocument", chatID, path, caption, opts)
}

func (f *fakeTransport) SendMediaGroup(ctx context.Context, chatID string, items []telegram.InputMedia, opts telegram.SendOptions) ([]telegram.Message, error) {
	call := sendCall{Method: "sendMediaGroup", ChatID: chatID, ReplyTo: opts.ReplyTo, Silent: opts.Silent}
	for _, item := range items {
		call.Paths = append(call.Paths, item.Path)
		call.Types = append(call.Types, item.Type)
		call.Caption = append(call.Caption, item.Caption)
	}
	return f.record(call, len(items))
}
