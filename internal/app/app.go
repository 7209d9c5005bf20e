package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/rpattn/entitysync/internal/blob"
	"github.com/rpattn/entitysync/internal/config"
	"github.com/rpattn/entitysync/internal/db"
	"github.com/rpattn/entitysync/internal/deadletter"
	"github.com/rpattn/entitysync/internal/diagnostics"
	"github.com/rpattn/entitysync/internal/inbound"
	"github.com/rpattn/entitysync/internal/ingestion"
	"github.com/rpattn/entitysync/internal/metrics"
	"github.com/rpattn/entitysync/internal/middleware"
	"github.com/rpattn/entitysync/internal/outbound"
	"github.com/rpattn/entitysync/internal/publishing"
	"github.com/rpattn/entitysync/internal/records"
	"github.com/rpattn/entitysync/internal/repository"
	"github.com/rpattn/entitysync/internal/repository/memory"
	"github.com/rpattn/entitysync/internal/retry"
	"github.com/rpattn/entitysync/internal/schema"
	"github.com/rpattn/entitysync/internal/syncctx"
	"github.com/rpattn/entitysync/internal/transformations"
	"github.com/rpattn/entitysync/internal/transport"
	"github.com/rpattn/entitysync/internal/upsert"

	"github.com/nats-io/nats.go"
	"github.com/rs/cors"
)

// App holds every wired service of one process.
type App struct {
	Config      config.Config
	Schemas     *schema.Registry
	Records     *publishing.Controller
	Ingestion   *ingestion.Service
	Tracker     *retry.Tracker
	DeadLetters *deadletter.Service
	Metrics     *metrics.Recorder
	Logs        *diagnostics.LogBuffer

	events  transport.EventPublisher
	nc      *nats.Conn
	js      nats.JetStreamContext
	conn    *db.Connection
	closers []func()
}

type stores struct {
	records     repository.RecordRepository
	retries     repository.RetryRepository
	deadLetters repository.DeadLetterRepository
}

// New wires the services described by cfg. logs may be nil.
func New(ctx context.Context, cfg config.Config, logs *diagnostics.LogBuffer) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New(), Logs: logs}
	if a.Logs == nil {
		a.Logs = diagnostics.NewLogBuffer(cfg.Diagnostics.BufferSize)
	}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	extOpts := []transformations.Option{}
	images, err := openImageStore(ctx, cfg.Blob)
	if err != nil {
		a.Close()
		return nil, err
	}
	if images != nil {
		extOpts = append(extOpts, transformations.WithImageStore(images))
	}
	extensions := transformations.NewDefaultRegistry(extOpts...)

	registry, err := schema.Build(cfg.Sync.SchemasFile, extensions)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build schema registry: %w", err)
	}
	a.Schemas = registry

	if err := a.openTransport(); err != nil {
		a.Close()
		return nil, err
	}

	actor := syncctx.Actor{Login: cfg.Sync.ActingUser, CompanyID: cfg.Sync.CompanyID}
	builder := outbound.NewBuilder(st.records, extensions, cfg.Sync.OriginTag, actor)
	publisher := outbound.NewPublisher(builder, a.events, a.Metrics)
	a.Records = publishing.NewController(st.records, registry, publisher, cfg.Sync.BatchSize)

	processor := inbound.NewProcessor(extensions, a.Records, actor)
	engine := upsert.NewEngine(a.Records)
	a.Tracker = retry.NewTracker(st.retries, cfg.Sync.MaxRetries, cfg.Sync.Retention, a.Metrics)
	a.DeadLetters = deadletter.NewService(st.deadLetters, a.Metrics)
	a.Ingestion = ingestion.NewService(registry, processor, engine, a.Tracker, a.DeadLetters, a.Metrics)
	a.DeadLetters.SetReplayer(a.Ingestion)

	log.Printf("[APP] wired %d entity schemas (storage=%s transport=%s blob=%s)",
		len(registry.List()), cfg.Storage.Driver, cfg.Transport.Provider, cfg.Blob.Driver)
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.Config.Storage.Driver == "memory" {
		log.Printf("[APP] WARN: using in-memory storage, data is lost on exit")
		return stores{
			records:     memory.NewRecordStore(),
			retries:     memory.NewRetryStore(),
			deadLetters: memory.NewDeadLetterStore(),
		}, nil
	}

	conn, err := db.NewConnection(ctx, a.Config.Database)
	if err != nil {
		return stores{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.conn = conn
	a.closers = append(a.closers, conn.Close)
	return stores{
		records:     repository.NewRecordRepository(conn.Pool),
		retries:     repository.NewRetryRepository(conn.Pool),
		deadLetters: repository.NewDeadLetterRepository(conn.Pool),
	}, nil
}

func openImageStore(ctx context.Context, cfg config.BlobConfig) (transformations.ImageStore, error) {
	var store blob.Store
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "s3":
		s3Store, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open image bucket: %w", err)
		}
		store = s3Store
	default:
		store = blob.NewMemory()
	}
	return blob.NewImageCache(store, cfg.FetchTimeout), nil
}

func (a *App) openTransport() error {
	cfg := a.Config.Transport
	switch cfg.Provider {
	case "memory":
		a.events = transport.NewMemoryPublisher()
	case "nats":
		subjects := []string{outbound.DefaultTopic, outbound.DefaultTopic + ".>"}
		for _, es := range a.Schemas.List() {
			if es.Topic != "" && es.Topic != outbound.DefaultTopic {
				subjects = append(subjects, es.Topic)
			}
		}
		if cfg.Consume && cfg.ConsumeSubject != "" {
			subjects = append(subjects, cfg.ConsumeSubject)
		}
		nc, js, err := transport.Connect(transport.NATSConfig{URL: cfg.NATSURL, Stream: cfg.Stream, Subjects: subjects})
		if err != nil {
			return err
		}
		a.nc, a.js = nc, js
		a.events = transport.NewNATSPublisher(nc, js)
	default:
		a.events = transport.LogPublisher{}
	}
	events := a.events
	a.closers = append(a.closers, func() {
		if err := events.Close(); err != nil {
			log.Printf("[APP] WARN: failed to close transport: %v", err)
		}
	})
	return nil
}

// StartConsumer subscribes the ingestion service to the inbound subject when
// consumption is enabled.
func (a *App) StartConsumer() error {
	if !a.Config.Transport.Consume {
		return nil
	}
	if a.js == nil {
		return fmt.Errorf("inbound consumption needs the nats transport")
	}
	sub, err := transport.Subscribe(a.js, a.Config.Transport.ConsumeSubject, a.Config.Transport.ConsumerName, a.Ingestion.Deliver)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[NATS] WARN: failed to unsubscribe: %v", err)
		}
	})
	return nil
}

// Handler returns the HTTP surface with CORS, access logging and panic recovery.
func (a *App) Handler() http.Handler {
	actor := syncctx.Actor{Login: a.Config.Sync.ActingUser, CompanyID: a.Config.Sync.CompanyID}
	deadLetters := deadletter.NewHTTPHandler(a.DeadLetters)

	mux := http.NewServeMux()
	mux.Handle("/sync", ingestion.NewHTTPHandler(a.Ingestion))
	mux.Handle("/sync/logs", diagnostics.NewHTTPHandler(a.Logs))
	mux.Handle("/records/", middleware.ActorMiddleware(actor)(records.NewHTTPHandler(a.Records)))
	mux.Handle("/dead-letters", deadLetters)
	mux.Handle("/dead-letters/", deadLetters)
	mux.Handle("/retries/stats", http.HandlerFunc(a.handleRetryStats))
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	origins := a.Config.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: !containsWildcard(origins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	return corsHandler.Handler(middleware.LoggingMiddleware(middleware.Recover(mux)))
}

func (a *App) handleRetryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := a.Tracker.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stats":       stats,
		"max_retries": a.Tracker.MaxRetries(),
	})
}

// Events exposes the outbound transport, mostly for tests on the memory provider.
func (a *App) Events() transport.EventPublisher {
	return a.events
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			return true
		}
	}
	return false
}
