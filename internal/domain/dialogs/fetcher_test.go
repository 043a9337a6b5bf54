package dialogs_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-inbox/internal/domain/dialogs"
	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/domain/transport/transporttest"
)

var (
	peerJohn    = transport.Peer{Type: transport.PeerUser, ID: 10}
	peerDesign  = transport.Peer{Type: transport.PeerChat, ID: 20}
	peerNews    = transport.Peer{Type: transport.PeerChannel, ID: 30}
	peerDevs    = transport.Peer{Type: transport.PeerChannel, ID: 40}
	peerMissing = transport.Peer{Type: transport.PeerUser, ID: 99}
)

func sampleTables() *transport.DialogTables {
	self := transport.User{ID: 1, FirstName: "Me"}
	return &transport.DialogTables{
		Dialogs: []transport.Dialog{
			{Peer: peerJohn, TopMessage: 3, UnreadCount: 2},
			{Peer: peerMissing, TopMessage: 1},
			{Peer: peerDesign, TopMessage: 7, UnreadCount: 5},
			{Peer: peerNews, TopMessage: 100},
			{Peer: peerDevs, TopMessage: 8, UnreadCount: -1},
		},
		Users: []transport.User{
			self,
			{ID: 10, FirstName: "John", LastName: "Doe"},
			{ID: 11, Username: "alice"},
		},
		Chats: []transport.Chat{
			{ID: 20, Type: transport.PeerChat, Title: "Design Team"},
			{ID: 30, Type: transport.PeerChannel, Title: "Tech News", Broadcast: true},
			{ID: 40, Type: transport.PeerChannel, Title: "Devs", Megagroup: true},
		},
		Messages: []transport.Message{
			{ID: 3, Peer: peerJohn, Text: "Hey there!", Date: 1700000300},
			{ID: 7, Peer: peerDesign, From: &transport.Peer{Type: transport.PeerUser, ID: 11}, Text: "Mockups ready", Date: 1700000200},
			{ID: 100, Peer: peerNews, Text: "Release notes", Date: 1700000100},
			{ID: 8, Peer: peerDevs, Text: "ship it", Date: 1700000000, Out: true},
		},
		Self: &self,
	}
}

func TestListChats_NormalizesInServerOrder(t *testing.T) {
	t.Parallel()
	client := transporttest.WithoutHistory{Client: &transporttest.Fake{
		ListDialogsFn: func(context.Context, int) (*transport.DialogTables, error) { return sampleTables(), nil },
	}}

	chats, err := dialogs.NewFetcher(dialogs.Config{}).ListChats(context.Background(), client, 0)
	require.NoError(t, err)
	require.Len(t, chats, 4, "unresolved peer must be skipped")

	want := []struct {
		id, title string
		kind      model.ChatKind
		unread    int
		sender    string
	}{
		{id: "10", title: "John Doe", kind: model.ChatPrivate, unread: 2, sender: "John Doe"},
		{id: "-20", title: "Design Team", kind: model.ChatGroup, unread: 5, sender: "@alice"},
		{id: "-1000000000030", title: "Tech News", kind: model.ChatChannel, sender: "Tech News"},
		{id: "-1000000000040", title: "Devs", kind: model.ChatChannel, unread: 0, sender: "You"},
	}
	for i, w := range want {
		c := chats[i]
		assert.Equal(t, w.id, c.ID)
		assert.Equal(t, w.title, c.Title)
		assert.Equal(t, w.kind, c.Kind)
		assert.Equal(t, w.unread, c.UnreadCount)
		require.NotNil(t, c.LastMessage)
		assert.Equal(t, w.sender, c.LastMessage.SenderDisplayName)
		assert.Equal(t, []model.MessageSummary{*c.LastMessage}, c.RecentMessages)
	}
	assert.Equal(t, time.Unix(1700000300, 0).UTC(), chats[0].LastMessage.Timestamp)
	assert.Equal(t, "1", chats[3].LastMessage.SenderID)
}

func TestListChats_HistoryFailureDegradesToEmpty(t *testing.T) {
	t.Parallel()
	client := &transporttest.Fake{
		ListDialogsFn: func(context.Context, int) (*transport.DialogTables, error) { return sampleTables(), nil },
		GetHistoryFn: func(_ context.Context, peer transport.Peer, limit int) (*transport.HistoryTables, error) {
			if peer == peerDesign {
				return nil, errors.New("CHANNEL_PRIVATE")
			}
			msgs := make([]transport.Message, 0, limit+2)
			for i := 1; i <= limit+2; i++ {
				msgs = append(msgs, transport.Message{ID: i, Peer: peer, Text: "m", Date: 1700000000 + i})
			}
			return &transport.HistoryTables{Messages: msgs}, nil
		},
	}

	chats, err := dialogs.NewFetcher(dialogs.Config{HistoryLimit: 3}).ListChats(context.Background(), client, 10)
	require.NoError(t, err)
	require.Len(t, chats, 4)

	assert.Equal(t, "Design Team", chats[1].Title)
	assert.NotNil(t, chats[1].RecentMessages)
	assert.Empty(t, chats[1].RecentMessages)

	recent := chats[0].RecentMessages
	require.Len(t, recent, 3)
	assert.Equal(t, []int{5, 4, 3}, []int{recent[0].ID, recent[1].ID, recent[2].ID})
}

func TestListChats_BoundedConcurrencyKeepsOrder(t *testing.T) {
	t.Parallel()

	const total = 12
	tables := &transport.DialogTables{}
	for i := 1; i <= total; i++ {
		tables.Dialogs = append(tables.Dialogs, transport.Dialog{Peer: transport.Peer{Type: transport.PeerUser, ID: int64(i)}})
		tables.Users = append(tables.Users, transport.User{ID: int64(i), FirstName: "u"})
	}

	var inFlight, peak atomic.Int32
	client := &transporttest.Fake{
		ListDialogsFn: func(context.Context, int) (*transport.DialogTables, error) { return tables, nil },
		GetHistoryFn: func(_ context.Context, peer transport.Peer, _ int) (*transport.HistoryTables, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			// Ранние чаты отвечают позже поздних.
			time.Sleep(time.Duration(total-peer.ID) * 2 * time.Millisecond)
			inFlight.Add(-1)
			return &transport.HistoryTables{Messages: []transport.Message{{ID: int(peer.ID), Peer: peer}}}, nil
		},
	}

	chats, err := dialogs.NewFetcher(dialogs.Config{Concurrency: 3}).ListChats(context.Background(), client, total)
	require.NoError(t, err)
	require.Len(t, chats, total)
	for i, c := range chats {
		require.Len(t, c.RecentMessages, 1)
		assert.Equal(t, i+1, c.RecentMessages[0].ID)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, total, client.Calls("GetHistory"))
}

func TestListChats_Failures(t *testing.T) {
	t.Parallel()

	t.Run("noClient", func(t *testing.T) {
		t.Parallel()
		_, err := dialogs.NewFetcher(dialogs.Config{}).ListChats(context.Background(), nil, 10)
		assert.Equal(t, model.KindNotAuthenticated, model.KindOf(err))
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		client := &transporttest.Fake{
			ListDialogsFn: func(context.Context, int) (*transport.DialogTables, error) {
				time.Sleep(time.Second)
				return nil, nil
			},
		}
		_, err := dialogs.NewFetcher(dialogs.Config{Timeout: 30 * time.Millisecond}).ListChats(context.Background(), client, 10)
		assert.Equal(t, model.KindTimeout, model.KindOf(err))
	})

	t.Run("emptyResponse", func(t *testing.T) {
		t.Parallel()
		client := &transporttest.Fake{
			ListDialogsFn: func(context.Context, int) (*transport.DialogTables, error) { return nil, nil },
		}
		_, err := dialogs.NewFetcher(dialogs.Config{}).ListChats(context.Background(), client, 10)
		assert.Equal(t, model.KindMalformedResponse, model.KindOf(err))
	})

	t.Run("canceledDuringHistory", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		client := &transporttest.Fake{
			ListDialogsFn: func(context.Context, int) (*transport.DialogTables, error) { return sampleTables(), nil },
			GetHistoryFn: func(ctx context.Context, _ transport.Peer, _ int) (*transport.HistoryTables, error) {
				cancel()
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		chats, err := dialogs.NewFetcher(dialogs.Config{}).ListChats(ctx, client, 10)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, chats)
	})
}

func TestMarkedID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		peer transport.Peer
		want string
	}{
		{peer: transport.Peer{Type: transport.PeerUser, ID: 777}, want: "777"},
		{peer: transport.Peer{Type: transport.PeerChat, ID: 777}, want: "-777"},
		{peer: transport.Peer{Type: transport.PeerChannel, ID: 777}, want: "-1000000000777"},
	}
	for _, tc := range cases {
		if got := dialogs.MarkedID(tc.peer); got != tc.want {
			t.Errorf("MarkedID(%+v) = %q, want %q", tc.peer, got, tc.want)
		}
	}
}
