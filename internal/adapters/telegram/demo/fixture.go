package demo

import (
	_ "embed"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"telegram-inbox/internal/domain/transport"
)

//go:embed fixture.yaml
var defaultFixture []byte

// Fixture — содержимое демо-аккаунта.
type Fixture struct {
	Self    FixtureUser     `yaml:"self"`
	Users   []FixtureUser   `yaml:"users"`
	Chats   []FixtureChat   `yaml:"chats"`
	Dialogs []FixtureDialog `yaml:"dialogs"`
}

type FixtureUser struct {
	ID        int64  `yaml:"id"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Username  string `yaml:"username"`
}

type FixtureChat struct {
	ID        int64  `yaml:"id"`
	Type      string `yaml:"type"`
	Title     string `yaml:"title"`
	Broadcast bool   `yaml:"broadcast"`
	Megagroup bool   `yaml:"megagroup"`
}

type FixtureDialog struct {
	Peer   string `yaml:"peer"`
	Unread int    `yaml:"unread"`
	// HistoryFails заставляет GetHistory отказывать для этого диалога.
	HistoryFails bool             `yaml:"history_fails"`
	Messages     []FixtureMessage `yaml:"messages"`
}

type FixtureMessage struct {
	ID   int    `yaml:"id"`
	Text string `yaml:"text"`
	// Ago — давность сообщения относительно момента выборки (time.ParseDuration).
	Ago  string `yaml:"ago"`
	From string `yaml:"from"`
	Out  bool   `yaml:"out"`
}

// LoadFixture читает фикстуру из path; пустой path — встроенная фикстура.
func LoadFixture(path string) (*Fixture, error) {
	raw := defaultFixture
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read demo fixture")
		}
		raw = data
	}
	return ParseFixture(raw)
}

// ParseFixture разбирает YAML и проверяет ссылки на собеседников.
func ParseFixture(raw []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse demo fixture")
	}
	for i, d := range f.Dialogs {
		if _, err := parsePeer(d.Peer); err != nil {
			return nil, errors.Wrapf(err, "dialog %d", i)
		}
		for _, m := range d.Messages {
			if _, err := time.ParseDuration(m.Ago); m.Ago != "" && err != nil {
				return nil, errors.Wrapf(err, "dialog %d message %d: ago", i, m.ID)
			}
			if m.From != "" {
				if _, err := parsePeer(m.From); err != nil {
					return nil, errors.Wrapf(err, "dialog %d message %d: from", i, m.ID)
				}
			}
		}
	}
	return &f, nil
}

// parsePeer разбирает ссылку вида "user:1", "chat:2", "channel:4".
func parsePeer(s string) (transport.Peer, error) {
	kind, rawID, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return transport.Peer{}, errors.Errorf("peer %q: want type:id", s)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return transport.Peer{}, errors.Wrapf(err, "peer %q", s)
	}
	switch t := transport.PeerType(kind); t {
	case transport.PeerUser, transport.PeerChat, transport.PeerChannel:
		return transport.Peer{Type: t, ID: id}, nil
	default:
		return transport.Peer{}, errors.Errorf("peer %q: unknown type %q", s, kind)
	}
}

func (u FixtureUser) toUser() transport.User {
	return transport.User{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Username: u.Username}
}

func (f *Fixture) users() []transport.User {
	out := make([]transport.User, 0, len(f.Users)+1)
	out = append(out, f.Self.toUser())
	for _, u := range f.Users {
		out = append(out, u.toUser())
	}
	return out
}

func (f *Fixture) chats() []transport.Chat {
	out := make([]transport.Chat, 0, len(f.Chats))
	for _, c := range f.Chats {
		t := transport.PeerChat
		if c.Type == string(transport.PeerChannel) {
			t = transport.PeerChannel
		}
		out = append(out, transport.Chat{ID: c.ID, Type: t, Title: c.Title, Broadcast: c.Broadcast, Megagroup: c.Megagroup})
	}
	return out
}

// messages возвращает сообщения диалога от новых к старым, датированные от now.
func (d FixtureDialog) messages(peer transport.Peer, now time.Time) []transport.Message {
	out := make([]transport.Message, 0, len(d.Messages))
	for _, m := range d.Messages {
		ago, _ := time.ParseDuration(m.Ago)
		msg := transport.Message{
			ID:   m.ID,
			Peer: peer,
			Text: m.Text,
			Date: int(now.Add(-ago).Unix()),
			Out:  m.Out,
		}
		if from, err := parsePeer(m.From); err == nil {
			msg.From = &from
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}
