// Package tgtest provides a configurable fake tg.Client for tests.
package tgtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rkudryashov/tgmux/internal/tg"
)

// FakeClient implements tg.Client with per-method hooks. Unset hooks
// succeed with zero values. Calls are recorded for assertions.
type FakeClient struct {
	mu sync.Mutex

	ConnectFunc       func(ctx context.Context) error
	IsAuthorizedFunc  func(ctx context.Context) (bool, error)
	SendCodeFunc      func(ctx context.Context, phone string) (string, error)
	SignInFunc        func(ctx context.Context, phone, codeHash, code string) (*tg.Account, error)
	CheckPasswordFunc func(ctx context.Context, password string) (*tg.Account, error)
	MeFunc            func(ctx context.Context) (*tg.Account, error)
	DialogsFunc       func(ctx context.Context, limit int) ([]tg.Dialog, error)
	SendMessageFunc   func(ctx context.Context, chatID int64, text string) error
	ResolveChatFunc   func(ctx context.Context, ref string) (*tg.Chat, error)
	JoinChatFunc      func(ctx context.Context, chat *tg.Chat) error
	ArchiveChatFunc   func(ctx context.Context, chat *tg.Chat) error

	Disconnected bool
	SentTo       []int64
	Joined       []string
	Archived     []int64
}

var _ tg.Client = (*FakeClient)(nil)

func (f *FakeClient) Connect(ctx context.Context) error {
	if f.ConnectFunc != nil {
		return f.ConnectFunc(ctx)
	}
	return nil
}

func (f *FakeClient) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnected = true
	return nil
}

func (f *FakeClient) IsAuthorized(ctx context.Context) (bool, error) {
	if f.IsAuthorizedFunc != nil {
		return f.IsAuthorizedFunc(ctx)
	}
	return true, nil
}

func (f *FakeClient) SendCode(ctx context.Context, phone string) (string, error) {
	if f.SendCodeFunc != nil {
		return f.SendCodeFunc(ctx, phone)
	}
	return "hash", nil
}

func (f *FakeClient) SignIn(ctx context.Context, phone, codeHash, code string) (*tg.Account, error) {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, phone, codeHash, code)
	}
	return &tg.Account{ID: 1}, nil
}

func (f *FakeClient) CheckPassword(ctx context.Context, password string) (*tg.Account, error) {
	if f.CheckPasswordFunc != nil {
		return f.CheckPasswordFunc(ctx, password)
	}
	return &tg.Account{ID: 1}, nil
}

func (f *FakeClient) Me(ctx context.Context) (*tg.Account, error) {
	if f.MeFunc != nil {
		return f.MeFunc(ctx)
	}
	return &tg.Account{ID: 1}, nil
}

func (f *FakeClient) Dialogs(ctx context.Context, limit int) ([]tg.Dialog, error) {
	if f.DialogsFunc != nil {
		return f.DialogsFunc(ctx, limit)
	}
	return nil, nil
}

func (f *FakeClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	f.SentTo = append(f.SentTo, chatID)
	f.mu.Unlock()
	if f.SendMessageFunc != nil {
		return f.SendMessageFunc(ctx, chatID, text)
	}
	return nil
}

func (f *FakeClient) ResolveChat(ctx context.Context, ref string) (*tg.Chat, error) {
	if f.ResolveChatFunc != nil {
		return f.ResolveChatFunc(ctx, ref)
	}
	return &tg.Chat{ID: int64(len(ref)), Title: ref, Kind: tg.KindChannel, AccessHash: 1}, nil
}

func (f *FakeClient) JoinChat(ctx context.Context, chat *tg.Chat) error {
	f.mu.Lock()
	f.Joined = append(f.Joined, chat.Title)
	f.mu.Unlock()
	if f.JoinChatFunc != nil {
		return f.JoinChatFunc(ctx, chat)
	}
	return nil
}

func (f *FakeClient) ArchiveChat(ctx context.Context, chat *tg.Chat) error {
	f.mu.Lock()
	f.Archived = append(f.Archived, chat.ID)
	f.mu.Unlock()
	if f.ArchiveChatFunc != nil {
		return f.ArchiveChatFunc(ctx, chat)
	}
	return nil
}

// Dialer returns a tg.Dialer that hands out the given clients in order and
// records each dial config. It fails when dialed more times than clients
// were supplied.
func Dialer(clients ...*FakeClient) (tg.Dialer, *[]tg.DialConfig) {
	var (
		mu    sync.Mutex
		n     int
		calls []tg.DialConfig
	)
	dial := func(_ context.Context, cfg tg.DialConfig) (tg.Client, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, cfg)
		if n >= len(clients) {
			return nil, fmt.Errorf("unexpected dial #%d", n+1)
		}
		c := clients[n]
		n++
		return c, nil
	}
	return dial, &calls
}
