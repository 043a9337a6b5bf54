package dialogs

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
)

const (
	channelIDOffset   = 1000000000000
	selfChatTitle     = "Saved Messages"
	outgoingSender    = "You"
	deletedUserName   = "Deleted Account"
	unknownSenderName = "Unknown"
)

// MarkedID возвращает идентификатор собеседника в «помеченной» форме
// Bot API: пользователь — id, группа — -id, канал — -100…id.
func MarkedID(p transport.Peer) string {
	switch p.Type {
	case transport.PeerChat:
		return strconv.FormatInt(-p.ID, 10)
	case transport.PeerChannel:
		return strconv.FormatInt(-(channelIDOffset + p.ID), 10)
	default:
		return strconv.FormatInt(p.ID, 10)
	}
}

// index разрешает собеседников по таблицам ответа. parent — таблицы
// исходного списка диалогов, если index построен по ответу истории.
type index struct {
	users  map[int64]transport.User
	chats  map[transport.Peer]transport.Chat
	self   *transport.User
	parent *index
}

func newIndex(users []transport.User, chats []transport.Chat, self *transport.User, parent *index) *index {
	ix := &index{
		users:  make(map[int64]transport.User, len(users)),
		chats:  make(map[transport.Peer]transport.Chat, len(chats)),
		self:   self,
		parent: parent,
	}
	for _, u := range users {
		ix.users[u.ID] = u
	}
	for _, c := range chats {
		ix.chats[transport.Peer{Type: c.Type, ID: c.ID}] = c
	}
	if ix.self == nil && parent != nil {
		ix.self = parent.self
	}
	return ix
}

func (ix *index) user(id int64) (transport.User, bool) {
	for cur := ix; cur != nil; cur = cur.parent {
		if u, ok := cur.users[id]; ok {
			return u, true
		}
	}
	return transport.User{}, false
}

func (ix *index) chat(p transport.Peer) (transport.Chat, bool) {
	for cur := ix; cur != nil; cur = cur.parent {
		if c, ok := cur.chats[p]; ok {
			return c, true
		}
	}
	return transport.Chat{}, false
}

// resolve строит запись списка по собеседнику. ok=false — собеседник не найден
// в таблицах ответа или его тип неизвестен.
func (ix *index) resolve(d transport.Dialog) (model.Chat, bool) {
	chat := model.Chat{
		ID:             MarkedID(d.Peer),
		UnreadCount:    max(d.UnreadCount, 0),
		RecentMessages: []model.MessageSummary{},
	}
	switch d.Peer.Type {
	case transport.PeerUser:
		u, ok := ix.user(d.Peer.ID)
		if !ok {
			return model.Chat{}, false
		}
		chat.Kind = model.ChatPrivate
		chat.Title = displayName(u)
		if ix.self != nil && ix.self.ID == u.ID {
			chat.Title = selfChatTitle
		}
	case transport.PeerChat, transport.PeerChannel:
		c, ok := ix.chat(d.Peer)
		if !ok {
			return model.Chat{}, false
		}
		chat.Title = c.Title
		chat.Kind = model.ChatGroup
		if c.Type == transport.PeerChannel {
			chat.Kind = model.ChatChannel
		}
	default:
		return model.Chat{}, false
	}
	return chat, true
}

// summary сворачивает сообщение в выжимку. dialog — собеседник диалога,
// которому принадлежит сообщение.
func (ix *index) summary(m transport.Message, dialog transport.Peer) model.MessageSummary {
	name, id := ix.sender(m, dialog)
	return model.MessageSummary{
		ID:                m.ID,
		Text:              m.Text,
		Timestamp:         time.Unix(int64(m.Date), 0).UTC(),
		SenderDisplayName: name,
		SenderID:          id,
	}
}

func (ix *index) sender(m transport.Message, dialog transport.Peer) (string, string) {
	if m.Out {
		if ix.self != nil {
			return outgoingSender, strconv.FormatInt(ix.self.ID, 10)
		}
		return outgoingSender, ""
	}
	if m.From != nil {
		return ix.peerName(*m.From)
	}
	return ix.peerName(dialog)
}

func (ix *index) peerName(p transport.Peer) (string, string) {
	id := MarkedID(p)
	if p.Type == transport.PeerUser {
		if u, ok := ix.user(p.ID); ok {
			return displayName(u), id
		}
		return unknownSenderName, id
	}
	if c, ok := ix.chat(p); ok {
		return c.Title, id
	}
	return unknownSenderName, id
}

func displayName(u transport.User) string {
	if u.Deleted {
		return deletedUserName
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return unknownSenderName
}

// newestFirst упорядочивает сообщения от новых к старым и обрезает до limit.
func newestFirst(items []model.MessageSummary, limit int) []model.MessageSummary {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
