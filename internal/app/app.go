package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/eventdrop/eventdrop/internal/adapter/fsadapter"
	"github.com/eventdrop/eventdrop/internal/config"
	httphandler "github.com/eventdrop/eventdrop/internal/handler/http"
	eventrepo "github.com/eventdrop/eventdrop/internal/repository/event"
	"github.com/eventdrop/eventdrop/internal/repository/throttle"
	"github.com/eventdrop/eventdrop/internal/service/access"
	"github.com/eventdrop/eventdrop/internal/service/archive"
	eventsvc "github.com/eventdrop/eventdrop/internal/service/event"
	"github.com/eventdrop/eventdrop/internal/service/file"
	"github.com/eventdrop/eventdrop/internal/service/preview"
	"github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	if a.cfg.RateLimitEnabled {
		// Informational only: coarse per-IP throttling happens at the
		// edge proxy, requests may arrive pre-gated.
		log.Info("Edge rate limiting is enabled upstream")
	}

	var (
		events   eventsvc.EventRepository
		attempts access.ThrottleRepository
	)

	if a.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			panic(err)
		}

		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			panic(err)
		}

		events = eventrepo.NewEventRepository(rdb, log)
		attempts = throttle.NewThrottleRepository(rdb, a.cfg.Throttle.Window, log)
	} else {
		log.Warn("No redis URL configured, using in-process state")

		events = eventrepo.NewMemoryRepository()
		attempts = throttle.NewMemoryRepository(a.cfg.Throttle.Window)
	}

	storage, err := fsadapter.NewFSAdapter(a.cfg.DataDir, log)
	if err != nil {
		panic(err)
	}

	eSrv := eventsvc.NewEventService(events, storage, a.cfg.AllowEventCreation,
		a.cfg.Upload.DefaultMaxFileSizeBytes, a.cfg.Upload.DefaultMaxTotalSizeBytes, log)
	aSrv := access.NewAccessService(attempts, a.cfg.Throttle.Threshold, log)
	fSrv := file.NewFileService(storage, eSrv, log)
	zSrv := archive.NewArchiveService(storage, log)
	pSrv := preview.NewPreviewService(storage, log)

	resolver := httphandler.NewResolver(eSrv, aSrv)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Handle("GET /api/config", httphandler.NewConfigHandler(httphandler.ConfigResponse{
		AllowedDomains:     a.cfg.AllowedDomains,
		SupportSubdomain:   a.cfg.SupportSubdomain,
		AllowEventCreation: a.cfg.AllowEventCreation,
	}, log))

	mux.Handle("POST /api/events", httphandler.NewCreateEventHandler(eSrv, log))
	mux.Handle("GET /api/events/{eventId}", httphandler.NewGetEventHandler(resolver, log))
	mux.Handle("PATCH /api/events/{eventId}", httphandler.NewUpdateEventHandler(resolver, eSrv, log))
	mux.Handle("DELETE /api/events/{eventId}", httphandler.NewDeleteEventHandler(resolver, eSrv, log))

	mux.Handle("GET /api/events/{eventId}/files", httphandler.NewListFilesHandler(resolver, fSrv, log))
	mux.Handle("POST /api/events/{eventId}/files", httphandler.NewUploadHandler(resolver, fSrv, log))
	mux.Handle("PATCH /api/events/{eventId}/folders", httphandler.NewRenameFolderHandler(resolver, fSrv, log))
	mux.Handle("GET /api/events/{eventId}/files.zip", httphandler.NewArchiveHandler(resolver, zSrv, log))
	mux.Handle("GET /api/events/{eventId}/files/{path...}", httphandler.NewDownloadHandler(resolver, fSrv, pSrv, log))
	mux.Handle("DELETE /api/events/{eventId}/files/{path...}", httphandler.NewDeleteFileHandler(resolver, fSrv, log))

	a.srv = &http.Server{
		Addr:    a.cfg.Listen,
		Handler: httphandler.WithRequestLog(mux, log),
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.srv.Shutdown(ctx)
}
