package nats

import (
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// CacheInvalidator is what the subscriber needs from the cache manager.
type CacheInvalidator interface {
	Invalidate(namespaces ...string)
}

// Invalidator listens for document-update events published by ingestion and
// flushes the ranking caches. Cached rankings go stale the moment a document
// changes; cached embeddings do not, they depend only on query text.
type Invalidator struct {
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
	cache   CacheInvalidator
	logger  *slog.Logger

	// namespaces flushed on every document update
	staleNamespaces []string
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

func New(url, subject string, cache CacheInvalidator, logger *slog.Logger, options Options) (*Invalidator, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docsearch"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Invalidator{
		conn:            conn,
		subject:         subject,
		cache:           cache,
		logger:          logger,
		staleNamespaces: []string{"results", "keywords"},
	}, nil
}

// Start subscribes to the update subject. The message payload is a document
// id and is only logged; any update invalidates whole ranking namespaces,
// since a changed document can shift every rank around it.
func (i *Invalidator) Start() error {
	sub, err := i.conn.Subscribe(i.subject, func(msg *nats.Msg) {
		documentID := strings.TrimSpace(string(msg.Data))
		i.logger.Info("document_updated", "document_id", documentID)
		i.cache.Invalidate(i.staleNamespaces...)
	})
	if err != nil {
		return err
	}
	i.sub = sub
	return nil
}

func (i *Invalidator) Close() {
	if i.sub != nil {
		_ = i.sub.Unsubscribe()
	}
	if i.conn != nil {
		i.conn.Close()
	}
}
