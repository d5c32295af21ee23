// Package tg defines the boundary to the remote messaging service. The rest
// of the subsystem depends only on the Client interface; the gogram-backed
// implementation lives in gogram.go and is the single place that knows
// MTProto details.
package tg

import "context"

// ChatKind classifies a conversation.
type ChatKind string

const (
	KindChannel ChatKind = "channel"
	KindGroup   ChatKind = "group"
	KindDirect  ChatKind = "direct"
)

// Account is the authenticated remote account's profile.
type Account struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// Dialog is one conversation visible to the account.
type Dialog struct {
	ChatID      int64
	Title       string
	Kind        ChatKind
	Username    string
	UnreadCount int
	Muted       bool
}

// Chat is a resolved chat entity, carrying enough to join and archive it.
type Chat struct {
	ID         int64
	AccessHash int64
	Title      string
	Kind       ChatKind
	Username   string
	// InviteHash is set when the chat was resolved from an invite link;
	// joining then goes through the invite-import call instead of a
	// channel join.
	InviteHash string
}

// Client is a live connection to the remote messaging service on behalf of
// one account. At most one in-flight operation per client is assumed;
// see the pool for the ownership rules.
type Client interface {
	// Connect opens the underlying transport. It does not authenticate;
	// authentication state comes from the session file.
	Connect(ctx context.Context) error
	// Disconnect closes the transport. The remote session slot stays
	// valid for later reconnects.
	Disconnect() error

	// IsAuthorized reports whether the remote side accepts the session.
	IsAuthorized(ctx context.Context) (bool, error)

	// SendCode requests a one-time login code for the phone number and
	// returns the server's code hash needed to complete sign-in.
	SendCode(ctx context.Context, phone string) (codeHash string, err error)
	// SignIn completes the code challenge. Challenge conditions are
	// reported as ErrCodeInvalid, ErrCodeExpired or ErrPasswordNeeded.
	SignIn(ctx context.Context, phone, codeHash, code string) (*Account, error)
	// CheckPassword completes the second-factor challenge.
	CheckPassword(ctx context.Context, password string) (*Account, error)

	// Me fetches the authenticated account's profile.
	Me(ctx context.Context) (*Account, error)
	// Dialogs enumerates up to limit most-recent conversations.
	Dialogs(ctx context.Context, limit int) ([]Dialog, error)
	// SendMessage delivers text to a chat as a new message from this
	// account (never a forward).
	SendMessage(ctx context.Context, chatID int64, text string) error
	// ResolveChat resolves a public handle or invite link to a chat entity.
	ResolveChat(ctx context.Context, ref string) (*Chat, error)
	// JoinChat joins a resolved chat, picking the join or invite-import
	// call by how the chat was resolved.
	JoinChat(ctx context.Context, chat *Chat) error
	// ArchiveChat moves a joined chat into the archived folder.
	ArchiveChat(ctx context.Context, chat *Chat) error
}

// DialConfig identifies one account's connection parameters. The session
// file at SessionPath is the durable authentication artifact; it is created
// by the client library on first connect and reused across restarts.
type DialConfig struct {
	SessionPath string
	AppID       int32
	AppHash     string
}

// Dialer constructs a connected Client. The production dialer is Dial;
// tests substitute fakes.
type Dialer func(ctx context.Context, cfg DialConfig) (Client, error)
