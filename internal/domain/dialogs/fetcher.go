// Package dialogs выгружает список диалогов авторизованной сессии и
// нормализует разнородные ответы транспорта в единую модель чата.
//
// Список всегда пересобирается целиком и следует порядку сервера (последняя
// активность сверху). Если транспорт умеет читать историю, для каждого чата
// подтягиваются последние сообщения; эти запросы идут параллельно с
// ограничением, а отказ одного из них оставляет чату пустую историю.
package dialogs

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/infra/concurrency"
	"telegram-inbox/internal/infra/logger"
)

const (
	DefaultDialogsLimit = 50
	DefaultHistoryLimit = 5
	DefaultConcurrency  = 5
	MaxConcurrency      = 10
)

// Config — параметры выборки. Нулевые значения заменяются умолчаниями.
type Config struct {
	// HistoryLimit — сколько последних сообщений брать на чат.
	HistoryLimit int
	// Concurrency — сколько запросов истории выполняется одновременно (1..10).
	Concurrency int
	// Timeout — таймаут каждого удалённого вызова.
	Timeout time.Duration
}

func (c Config) normalized() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	c.Concurrency = min(c.Concurrency, MaxConcurrency)
	if c.Timeout <= 0 {
		c.Timeout = concurrency.DefaultRPCTimeout
	}
	return c
}

// Fetcher — выборка диалогов.
type Fetcher struct {
	cfg Config
}

func NewFetcher(cfg Config) *Fetcher {
	return &Fetcher{cfg: cfg.normalized()}
}

// ListChats возвращает полный список чатов. nil-клиент означает отсутствие
// авторизованной сессии. Отмена ctx прерывает выборку целиком: частично
// собранный список не возвращается.
func (f *Fetcher) ListChats(ctx context.Context, client transport.Client, limit int) ([]model.Chat, error) {
	if client == nil {
		return nil, model.NewError(model.KindNotAuthenticated, errors.New("no authorized telegram session"))
	}
	if limit <= 0 {
		limit = DefaultDialogsLimit
	}

	tables, err := concurrency.CallWithTimeout(ctx, f.cfg.Timeout, "messages.getDialogs", func(ctx context.Context) (*transport.DialogTables, error) {
		return client.ListDialogs(ctx, limit)
	})
	if err != nil {
		return nil, model.Classify(err)
	}
	if tables == nil {
		return nil, model.NewError(model.KindMalformedResponse, errors.New("empty dialogs response"))
	}

	ix := newIndex(tables.Users, tables.Chats, tables.Self, nil)
	type messageKey struct {
		peer transport.Peer
		id   int
	}
	messages := make(map[messageKey]transport.Message, len(tables.Messages))
	for _, m := range tables.Messages {
		messages[messageKey{peer: m.Peer, id: m.ID}] = m
	}

	chats := make([]model.Chat, 0, len(tables.Dialogs))
	peers := make([]transport.Peer, 0, len(tables.Dialogs))
	skipped := 0
	for _, d := range tables.Dialogs {
		chat, ok := ix.resolve(d)
		if !ok {
			skipped++
			continue
		}
		if top, ok := messages[messageKey{peer: d.Peer, id: d.TopMessage}]; ok {
			summary := ix.summary(top, d.Peer)
			chat.LastMessage = &summary
		}
		chats = append(chats, chat)
		peers = append(peers, d.Peer)
	}
	if skipped > 0 {
		logger.Debug("skipped unresolved dialogs", zap.Int("count", skipped))
	}

	if reader, ok := client.(transport.HistoryReader); ok {
		f.fillHistory(ctx, reader, ix, chats, peers)
	} else {
		for i := range chats {
			if chats[i].LastMessage != nil {
				chats[i].RecentMessages = []model.MessageSummary{*chats[i].LastMessage}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Debug("dialogs fetched", zap.Int("chats", len(chats)))
	return chats, nil
}

// fillHistory заполняет RecentMessages. Каждая горутина пишет только в свой
// индекс, поэтому порядок списка не зависит от порядка завершения.
func (f *Fetcher) fillHistory(ctx context.Context, reader transport.HistoryReader, ix *index, chats []model.Chat, peers []transport.Peer) {
	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)

	for i := range chats {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			chats[i].RecentMessages = f.history(ctx, reader, ix, peers[i])
			return nil
		})
	}
	_ = g.Wait()
}

func (f *Fetcher) history(ctx context.Context, reader transport.HistoryReader, ix *index, peer transport.Peer) []model.MessageSummary {
	h, err := concurrency.CallWithTimeout(ctx, f.cfg.Timeout, "messages.getHistory", func(ctx context.Context) (*transport.HistoryTables, error) {
		return reader.GetHistory(ctx, peer, f.cfg.HistoryLimit)
	})
	if err != nil || h == nil {
		if ctx.Err() == nil {
			logger.Warn("history fetch failed, leaving chat without recent messages",
				zap.String("chat_id", MarkedID(peer)), zap.Error(err))
		}
		return []model.MessageSummary{}
	}

	local := newIndex(h.Users, h.Chats, nil, ix)
	out := make([]model.MessageSummary, 0, len(h.Messages))
	for _, m := range h.Messages {
		out = append(out, local.summary(m, peer))
	}
	return newestFirst(out, f.cfg.HistoryLimit)
}
