package tg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amarnathcjd/gogram/telegram"
)

// archiveFolderID is the provider's archived-chats folder.
const archiveFolderID = 1

// gogramClient implements Client over the gogram MTProto library.
type gogramClient struct {
	c *telegram.Client
}

// Dial constructs a gogram client bound to the session file in cfg and
// opens the transport. It is the production Dialer.
func Dial(_ context.Context, cfg DialConfig) (Client, error) {
	c, err := telegram.NewClient(telegram.ClientConfig{
		AppID:    cfg.AppID,
		AppHash:  cfg.AppHash,
		Session:  cfg.SessionPath,
		LogLevel: telegram.LogError,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	g := &gogramClient{c: c}
	if err := g.Connect(context.Background()); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *gogramClient) Connect(_ context.Context) error {
	if err := g.c.Connect(); err != nil {
		return fmt.Errorf("connect: %w", translateRPCError(err))
	}
	return nil
}

func (g *gogramClient) Disconnect() error {
	return g.c.Disconnect()
}

func (g *gogramClient) IsAuthorized(_ context.Context) (bool, error) {
	ok, err := g.c.IsAuthorized()
	if err != nil {
		err = translateRPCError(err)
		if err == ErrNotAuthorized {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func (g *gogramClient) SendCode(_ context.Context, phone string) (string, error) {
	hash, err := g.c.SendCode(phone)
	if err != nil {
		return "", translateRPCError(err)
	}
	return hash, nil
}

func (g *gogramClient) SignIn(ctx context.Context, phone, codeHash, code string) (*Account, error) {
	if _, err := g.c.AuthSignIn(phone, codeHash, code, nil); err != nil {
		return nil, translateRPCError(err)
	}
	return g.Me(ctx)
}

func (g *gogramClient) CheckPassword(ctx context.Context, password string) (*Account, error) {
	pwd, err := g.c.AccountGetPassword()
	if err != nil {
		return nil, translateRPCError(err)
	}
	srp, err := telegram.GetInputCheckPassword(password, pwd)
	if err != nil {
		return nil, fmt.Errorf("compute password proof: %w", err)
	}
	if _, err := g.c.AuthCheckPassword(srp); err != nil {
		return nil, translateRPCError(err)
	}
	return g.Me(ctx)
}

func (g *gogramClient) Me(_ context.Context) (*Account, error) {
	me, err := g.c.GetMe()
	if err != nil {
		return nil, translateRPCError(err)
	}
	return &Account{
		ID:        me.ID,
		Username:  me.Username,
		FirstName: me.FirstName,
		LastName:  me.LastName,
		Phone:     me.Phone,
	}, nil
}

func (g *gogramClient) Dialogs(_ context.Context, limit int) ([]Dialog, error) {
	res, err := g.c.MessagesGetDialogs(&telegram.MessagesGetDialogsParams{
		Limit:      int32(limit),
		OffsetPeer: &telegram.InputPeerEmpty{},
	})
	if err != nil {
		return nil, translateRPCError(err)
	}

	var (
		rawDialogs []telegram.Dialog
		rawChats   []telegram.Chat
		rawUsers   []telegram.User
	)
	switch v := res.(type) {
	case *telegram.MessagesDialogsObj:
		rawDialogs, rawChats, rawUsers = v.Dialogs, v.Chats, v.Users
	case *telegram.MessagesDialogsSlice:
		rawDialogs, rawChats, rawUsers = v.Dialogs, v.Chats, v.Users
	default:
		return nil, fmt.Errorf("unexpected dialogs response %T", res)
	}

	chats := make(map[int64]telegram.Chat, len(rawChats))
	for _, c := range rawChats {
		switch e := c.(type) {
		case *telegram.ChatObj:
			chats[e.ID] = e
		case *telegram.Channel:
			chats[e.ID] = e
		}
	}
	users := make(map[int64]*telegram.UserObj, len(rawUsers))
	for _, u := range rawUsers {
		if e, ok := u.(*telegram.UserObj); ok {
			users[e.ID] = e
		}
	}

	now := int32(time.Now().Unix())
	dialogs := make([]Dialog, 0, len(rawDialogs))
	for _, d := range rawDialogs {
		obj, ok := d.(*telegram.DialogObj)
		if !ok {
			continue
		}
		entry := Dialog{UnreadCount: int(obj.UnreadCount)}
		if obj.NotifySettings != nil && obj.NotifySettings.MuteUntil > now {
			entry.Muted = true
		}

		switch peer := obj.Peer.(type) {
		case *telegram.PeerUser:
			u, ok := users[peer.UserID]
			if !ok {
				continue
			}
			entry.ChatID = u.ID
			entry.Title = strings.TrimSpace(u.FirstName + " " + u.LastName)
			entry.Kind = KindDirect
			entry.Username = u.Username
		case *telegram.PeerChat:
			c, ok := chats[peer.ChatID].(*telegram.ChatObj)
			if !ok {
				continue
			}
			entry.ChatID = c.ID
			entry.Title = c.Title
			entry.Kind = KindGroup
		case *telegram.PeerChannel:
			c, ok := chats[peer.ChannelID].(*telegram.Channel)
			if !ok {
				continue
			}
			entry.ChatID = c.ID
			entry.Title = c.Title
			entry.Username = c.Username
			if c.Broadcast {
				entry.Kind = KindChannel
			} else {
				entry.Kind = KindGroup
			}
		default:
			continue
		}
		dialogs = append(dialogs, entry)
	}
	return dialogs, nil
}

func (g *gogramClient) SendMessage(_ context.Context, chatID int64, text string) error {
	if _, err := g.c.SendMessage(chatID, text); err != nil {
		return translateRPCError(err)
	}
	return nil
}

func (g *gogramClient) ResolveChat(_ context.Context, ref string) (*Chat, error) {
	if hash, ok := inviteHash(ref); ok {
		invite, err := g.c.MessagesCheckChatInvite(hash)
		if err != nil {
			return nil, translateRPCError(err)
		}
		return inviteToChat(hash, invite)
	}

	peer, err := g.c.ResolveUsername(strings.TrimPrefix(normalizeRef(ref), "@"))
	if err != nil {
		return nil, translateRPCError(err)
	}
	switch e := peer.(type) {
	case *telegram.Channel:
		kind := KindGroup
		if e.Broadcast {
			kind = KindChannel
		}
		return &Chat{ID: e.ID, AccessHash: e.AccessHash, Title: e.Title, Kind: kind, Username: e.Username}, nil
	case *telegram.ChatObj:
		return &Chat{ID: e.ID, Title: e.Title, Kind: KindGroup}, nil
	case *telegram.UserObj:
		return &Chat{ID: e.ID, AccessHash: e.AccessHash, Title: e.FirstName, Kind: KindDirect, Username: e.Username}, nil
	default:
		return nil, fmt.Errorf("unexpected entity %T for %q", peer, ref)
	}
}

func (g *gogramClient) JoinChat(_ context.Context, chat *Chat) error {
	switch {
	case chat.InviteHash != "":
		updates, err := g.c.MessagesImportChatInvite(chat.InviteHash)
		if err != nil {
			return translateRPCError(err)
		}
		// An invite-resolved chat has no numeric id until the import
		// answers; fill it in so the archive pass can address the chat.
		if u, ok := updates.(*telegram.UpdatesObj); ok {
			for _, c := range u.Chats {
				switch e := c.(type) {
				case *telegram.Channel:
					chat.ID, chat.AccessHash = e.ID, e.AccessHash
				case *telegram.ChatObj:
					chat.ID = e.ID
				}
			}
		}
		return nil
	case chat.Kind == KindDirect:
		return fmt.Errorf("cannot join a direct chat")
	case chat.AccessHash != 0:
		channel := &telegram.InputChannelObj{ChannelID: chat.ID, AccessHash: chat.AccessHash}
		if _, err := g.c.ChannelsJoinChannel(channel); err != nil {
			return translateRPCError(err)
		}
		return nil
	default:
		return fmt.Errorf("chat %d can only be joined via invite link", chat.ID)
	}
}

func (g *gogramClient) ArchiveChat(_ context.Context, chat *Chat) error {
	var peer telegram.InputPeer
	if chat.AccessHash != 0 {
		peer = &telegram.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}
	} else {
		peer = &telegram.InputPeerChat{ChatID: chat.ID}
	}
	_, err := g.c.FoldersEditPeerFolders([]*telegram.InputFolderPeer{
		{Peer: peer, FolderID: archiveFolderID},
	})
	if err != nil {
		return translateRPCError(err)
	}
	return nil
}

// inviteHash extracts the invite token from refs like
// "https://t.me/+AbCdEf", "t.me/joinchat/AbCdEf" or a bare "+AbCdEf".
func inviteHash(ref string) (string, bool) {
	ref = normalizeRef(ref)
	switch {
	case strings.HasPrefix(ref, "+"):
		return ref[1:], true
	case strings.HasPrefix(ref, "joinchat/"):
		return ref[len("joinchat/"):], true
	}
	return "", false
}

// normalizeRef strips URL scheme and host from a chat reference.
func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	for _, prefix := range []string{"https://", "http://", "t.me/", "telegram.me/"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	return ref
}

func inviteToChat(hash string, invite telegram.ChatInvite) (*Chat, error) {
	switch v := invite.(type) {
	case *telegram.ChatInviteObj:
		kind := KindGroup
		if v.Broadcast {
			kind = KindChannel
		}
		return &Chat{Title: v.Title, Kind: kind, InviteHash: hash}, nil
	case *telegram.ChatInviteAlready:
		// Already a member; still resolvable so the archive pass can run.
		switch c := v.Chat.(type) {
		case *telegram.Channel:
			kind := KindGroup
			if c.Broadcast {
				kind = KindChannel
			}
			return &Chat{ID: c.ID, AccessHash: c.AccessHash, Title: c.Title, Kind: kind, InviteHash: hash}, nil
		case *telegram.ChatObj:
			return &Chat{ID: c.ID, Title: c.Title, Kind: KindGroup, InviteHash: hash}, nil
		}
		return nil, fmt.Errorf("unexpected chat type %T in invite", v.Chat)
	default:
		return nil, fmt.Errorf("unexpected invite response %T", invite)
	}
}
