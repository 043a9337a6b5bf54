package mtproto

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/tg"

	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/infra/logger"
)

var errDialogsNotModified = errors.New("dialogs not modified")

func normalizeDialogsResponse(resp tg.MessagesDialogsClass) (*tg.MessagesDialogs, error) {
	switch data := resp.(type) {
	case *tg.MessagesDialogs:
		return data, nil
	case *tg.MessagesDialogsSlice:
		return &tg.MessagesDialogs{
			Dialogs:  data.Dialogs,
			Messages: data.Messages,
			Chats:    data.Chats,
			Users:    data.Users,
		}, nil
	case *tg.MessagesDialogsNotModified:
		return nil, errDialogsNotModified
	default:
		return nil, errors.Errorf("unexpected dialogs response: %T", resp)
	}
}

func convertPeer(p tg.PeerClass) (transport.Peer, bool) {
	switch v := p.(type) {
	case *tg.PeerUser:
		return transport.Peer{Type: transport.PeerUser, ID: v.UserID}, true
	case *tg.PeerChat:
		return transport.Peer{Type: transport.PeerChat, ID: v.ChatID}, true
	case *tg.PeerChannel:
		return transport.Peer{Type: transport.PeerChannel, ID: v.ChannelID}, true
	default:
		return transport.Peer{}, false
	}
}

func convertUser(u *tg.User) transport.User {
	return transport.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Deleted:   u.Deleted,
	}
}

func convertUsers(users []tg.UserClass) []transport.User {
	out := make([]transport.User, 0, len(users))
	for _, entity := range users {
		if u, ok := entity.(*tg.User); ok {
			out = append(out, convertUser(u))
		}
	}
	return out
}

func convertChats(chats []tg.ChatClass) []transport.Chat {
	out := make([]transport.Chat, 0, len(chats))
	for _, entity := range chats {
		switch c := entity.(type) {
		case *tg.Chat:
			out = append(out, transport.Chat{ID: c.ID, Type: transport.PeerChat, Title: c.Title})
		case *tg.ChatForbidden:
			out = append(out, transport.Chat{ID: c.ID, Type: transport.PeerChat, Title: c.Title})
		case *tg.Channel:
			out = append(out, transport.Chat{ID: c.ID, Type: transport.PeerChannel, Title: c.Title, Broadcast: c.Broadcast, Megagroup: c.Megagroup})
		case *tg.ChannelForbidden:
			out = append(out, transport.Chat{ID: c.ID, Type: transport.PeerChannel, Title: c.Title, Broadcast: c.Broadcast, Megagroup: c.Megagroup})
		}
	}
	return out
}

func convertMessages(messages []tg.MessageClass) []transport.Message {
	out := make([]transport.Message, 0, len(messages))
	for _, entity := range messages {
		switch m := entity.(type) {
		case *tg.Message:
			peer, ok := convertPeer(m.PeerID)
			if !ok {
				continue
			}
			msg := transport.Message{ID: m.ID, Peer: peer, Text: m.Message, Date: m.Date, Out: m.Out}
			if from, ok := m.GetFromID(); ok {
				if p, ok := convertPeer(from); ok {
					msg.From = &p
				}
			}
			out = append(out, msg)
		case *tg.MessageService:
			// Служебные сообщения (вход в группу, смена названия) без текста.
			peer, ok := convertPeer(m.PeerID)
			if !ok {
				continue
			}
			out = append(out, transport.Message{ID: m.ID, Peer: peer, Date: m.Date, Out: m.Out})
		}
	}
	return out
}

func convertDialogs(batch *tg.MessagesDialogs, self *tg.User) *transport.DialogTables {
	out := &transport.DialogTables{
		Dialogs:  make([]transport.Dialog, 0, len(batch.Dialogs)),
		Users:    convertUsers(batch.Users),
		Chats:    convertChats(batch.Chats),
		Messages: convertMessages(batch.Messages),
	}
	for _, entity := range batch.Dialogs {
		d, ok := entity.(*tg.Dialog)
		if !ok {
			continue
		}
		peer, ok := convertPeer(d.Peer)
		if !ok {
			continue
		}
		out.Dialogs = append(out.Dialogs, transport.Dialog{Peer: peer, TopMessage: d.TopMessage, UnreadCount: d.UnreadCount})
	}
	if self != nil {
		u := convertUser(self)
		out.Self = &u
	}
	return out
}

func convertHistory(resp tg.MessagesMessagesClass) (*transport.HistoryTables, error) {
	var (
		messages []tg.MessageClass
		users    []tg.UserClass
		chats    []tg.ChatClass
	)
	switch r := resp.(type) {
	case *tg.MessagesMessages:
		messages, users, chats = r.Messages, r.Users, r.Chats
	case *tg.MessagesMessagesSlice:
		messages, users, chats = r.Messages, r.Users, r.Chats
	case *tg.MessagesChannelMessages:
		messages, users, chats = r.Messages, r.Users, r.Chats
	case *tg.MessagesMessagesNotModified:
		return &transport.HistoryTables{}, nil
	default:
		return nil, errors.Errorf("unexpected messages response: %T", resp)
	}
	return &transport.HistoryTables{
		Messages: convertMessages(messages),
		Users:    convertUsers(users),
		Chats:    convertChats(chats),
	}, nil
}

func authorization(u *tg.User) transport.Authorization {
	if u == nil {
		return transport.Authorization{}
	}
	return transport.Authorization{
		UserID:      u.ID,
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Username:    u.Username,
		Phone:       normalizePhone(u.Phone),
	}
}

// normalizePhone добавляет «+»: Telegram отдаёт номер без него.
func normalizePhone(phone string) string {
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + phone
}

// newPeerManager собирает peers.Manager gotd с хранилищем и кэшем в памяти.
// Ответ на messages.getDialogs применяется к нему до запросов истории.
func newPeerManager(api *tg.Client) *peers.Manager {
	opts := peers.Options{Storage: &peers.InmemoryStorage{}, Cache: &peers.InmemoryCache{}}
	if logger.IsDebugEnabled() {
		opts.Logger = logger.Named("peers")
	}
	return opts.Build(api)
}

// inputPeer адресует собеседника по данным, известным менеджеру.
func inputPeer(ctx context.Context, mgr *peers.Manager, peer transport.Peer) (tg.InputPeerClass, error) {
	switch peer.Type {
	case transport.PeerUser:
		u, err := mgr.ResolveUserID(ctx, peer.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve user %d", peer.ID)
		}
		return u.InputPeer(), nil
	case transport.PeerChat:
		c, err := mgr.ResolveChatID(ctx, peer.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve chat %d", peer.ID)
		}
		return c.InputPeer(), nil
	case transport.PeerChannel:
		c, err := mgr.ResolveChannelID(ctx, peer.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve channel %d", peer.ID)
		}
		return c.InputPeer(), nil
	default:
		return nil, errors.Errorf("unsupported peer type %v", peer.Type)
	}
}
