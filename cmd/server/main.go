package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"go.uber.org/zap"

	"mailview/backend/internal/api"
	"mailview/backend/internal/config"
	"mailview/backend/internal/contacts"
	"mailview/backend/internal/kv"
	"mailview/backend/internal/logging"
	"mailview/backend/internal/mailstore"
	"mailview/backend/internal/metrics"
	"mailview/backend/internal/poll"
	"mailview/backend/internal/reconcile"
	"mailview/backend/internal/session"
	ws "mailview/backend/internal/websocket"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	store, closeStore, err := newContactStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to create contact store", zap.Error(err))
	}
	defer closeStore()

	directory := contacts.NewDirectory(store, cfg.ContactKey, logger)
	if err := directory.Load(ctx); err != nil {
		logger.Warn("failed to load contact directory, starting empty", zap.Error(err))
	}

	imapStore := mailstore.NewIMAPStore(cfg.IMAPAddr(), cfg.IMAPUsername, cfg.IMAPPassword, cfg.IMAPUseTLS, cfg.FetchWindow, logger)
	defer imapStore.Close()

	sender := mailstore.NewSMTPSender(cfg.SMTPAddr(), cfg.SMTPUsername, cfg.SMTPPassword, cfg.FromAddress, cfg.FromName, cfg.MessageDomain, cfg.ChunkBytes, logger)

	hub := ws.NewHub(10, logger)
	signals := poll.NewEnvSignals()
	mets := metrics.New()

	sess := session.NewSession(ctx, session.Config{
		Fetcher:     mailstore.NewRetryingFetcher(imapStore, logger),
		Sender:      sender,
		Registry:    reconcile.NewRegistry(cfg.PendingTTL),
		Directory:   directory,
		Hub:         hub,
		Signals:     signals,
		Clock:       poll.RealClock(),
		Metrics:     mets,
		Logger:      logger,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
		SentFolder:  cfg.SentFolder,
	})
	defer sess.Close()

	// IDLE pushes poke the inbox loop; the scheduler decides whether a
	// refresh actually runs.
	go imapStore.StartIdleTrigger(ctx, "INBOX", func() {
		sess.PokeFolder("INBOX")
	})

	server := NewServer(sess, hub, signals, mets, logger)

	address := ":" + cfg.Port
	logger.Info("mailview backend starting",
		zap.String("address", address),
		zap.String("environment", cfg.Environment))

	if err := http.ListenAndServe(address, server); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}

// NewServer creates the HTTP handler for the mailview API.
func NewServer(sess *session.Session, hub *ws.Hub, signals *poll.EnvSignals, mets *metrics.Metrics, logger *zap.Logger) http.Handler {
	foldersHandler := api.NewFoldersHandler(sess, logger)
	messagesHandler := api.NewMessagesHandler(sess, logger)
	contactsHandler := api.NewContactsHandler(sess, logger)
	wsHandler := api.NewWebSocketHandler(hub, signals, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	mux.Handle("/api/v1/folders/", http.HandlerFunc(foldersHandler.Handle))
	mux.Handle("/api/v1/messages", http.HandlerFunc(messagesHandler.Send))
	mux.Handle("/api/v1/contacts", http.HandlerFunc(contactsHandler.GetContacts))
	mux.Handle("/api/v1/ws", http.HandlerFunc(wsHandler.Handle))
	mux.Handle("/metrics", mets.Handler())

	return mux
}

// newLogger picks the logger flavor from the environment.
func newLogger(cfg *config.Config) *zap.Logger {
	if cfg.Environment == "development" {
		return logging.NewDevelopment()
	}
	logger, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		LogFile:    cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

// newContactStore builds the configured contact KV backend.
func newContactStore(ctx context.Context, cfg *config.Config) (kv.Store, func(), error) {
	switch cfg.ContactStore {
	case config.ContactStorePostgres:
		store, err := kv.NewPostgresStore(ctx, cfg.GetDatabaseURL())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.ContactStoreRedis:
		store, err := kv.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return kv.NewMemoryStore(), func() {}, nil
	}
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Mailview API is running")
}
