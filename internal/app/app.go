package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "taskmanager/docs"
	"taskmanager/internal/config"
	"taskmanager/internal/connectivity"
	"taskmanager/internal/gateway"
	"taskmanager/internal/handlers"
	"taskmanager/internal/middleware"
	"taskmanager/internal/notify"
	"taskmanager/internal/pdf"
	"taskmanager/internal/queue"
	"taskmanager/internal/reconcile"
	"taskmanager/internal/reminder"
	"taskmanager/internal/repositories"
	"taskmanager/internal/routes"
	"taskmanager/internal/services"
	"taskmanager/internal/storage"
	"taskmanager/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
	sqliteFile      = "agent.db"
)

// Agent is the wired offline-first process that sits next to the UI.
type Agent struct {
	Monitor *connectivity.Monitor
	Prober  *connectivity.Prober
	Queue   *queue.Manager
	Store   *store.Store
	Engine  *reconcile.Engine
	Hub     *notify.Hub
	Reports *pdf.ReportGenerator

	log       *zap.SugaredLogger
	scheduler *reminder.Scheduler
	closeKV   func() error
}

// NewAgent builds every component and loads the local mirror. Nothing is started yet.
func NewAgent(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Agent, error) {
	kv, closeKV, err := OpenKV(ctx, cfg)
	if err != nil {
		return nil, err
	}

	hub := notify.NewHub()
	notifier := notify.Multi{hub, notify.NewLogNotifier(log)}

	prober := connectivity.NewProber(cfg.Agent.ServerURL, cfg.Agent.RequestTimeout, log)
	online := prober.Probe(ctx)
	monitor := connectivity.NewMonitor(online)
	log.Infof("[agent][init] server=%s online=%v storage=%s", cfg.Agent.ServerURL, online, cfg.Agent.Storage)

	gw := gateway.NewHTTPGateway(cfg.Agent.ServerURL, cfg.Agent.RequestTimeout, log)
	q := queue.NewManager(kv, gw, notifier, log)
	scheduler := reminder.NewScheduler(cfg.Reminders.LeadTime, log, deliveries(cfg, hub, log)...)

	st := store.New(store.Deps{
		KV:        kv,
		Gateway:   gw,
		Queue:     q,
		Network:   monitor,
		Reminders: scheduler,
		Notifier:  notifier,
		Log:       log,
	})
	q.OnSynced(st.Refresh)
	if err := st.Load(ctx); err != nil {
		// already surfaced as a banner; the agent keeps running on whatever could be read
		log.Warnf("[agent][init][load][err] %v", err)
	}

	return &Agent{
		Monitor:   monitor,
		Prober:    prober,
		Queue:     q,
		Store:     st,
		Engine:    reconcile.NewEngine(monitor, q, notifier, log),
		Hub:       hub,
		Reports:   pdf.NewReportGenerator(filepath.Join(cfg.Agent.DataDir, "reports"), cfg.Agent.FontPath),
		log:       log,
		scheduler: scheduler,
		closeKV:   closeKV,
	}, nil
}

// Router builds the agent HTTP API.
func (a *Agent) Router() *gin.Engine {
	r := newEngine(a.log)
	return routes.SetupAgentRoutes(r,
		handlers.NewTaskHandler(a.Store, a.log),
		handlers.NewLogHandler(a.Store, a.Queue, a.Reports, a.log),
		handlers.NewSyncHandler(a.Engine, a.Queue, a.Monitor, a.log),
		handlers.NewEventsHandler(a.Hub, a.log),
	)
}

// Close stops reminders and releases the store backend.
func (a *Agent) Close() error {
	a.scheduler.Stop()
	return a.closeKV()
}

// RunAgent serves the agent API until ctx is cancelled.
func RunAgent(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	a, err := NewAgent(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warnf("[agent][close][err] %v", err)
		}
	}()

	a.Engine.Start(ctx)
	defer a.Engine.Stop()
	go a.Prober.Watch(ctx, a.Monitor, cfg.Agent.ProbeInterval)

	// leftovers from a previous run are replayed right away when we start online
	if a.Monitor.Online() {
		go func() {
			if err := a.Engine.SyncNow(ctx); err != nil {
				log.Warnf("[agent][startup-sync][err] %v", err)
			}
		}()
	}

	return serve(ctx, log, fmt.Sprintf(":%d", cfg.Agent.Port), a.Router())
}

// RunServer serves the remote tasks/logs API. Without a database URL it keeps data in memory.
func RunServer(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	var (
		taskRepo repositories.TaskRepository
		logRepo  repositories.LogRepository
	)
	if cfg.Database.DSN == "" {
		log.Warnf("[server][init] database.url is empty, using in-memory repositories")
		taskRepo, logRepo = repositories.NewMemoryTaskRepository(), repositories.NewMemoryLogRepository()
	} else {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warnf("[server][db][close][err] %v", err)
			}
		}()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		if err := repositories.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		taskRepo, logRepo = repositories.NewTaskRepository(db), repositories.NewLogRepository(db)
	}

	remote := handlers.NewRemoteHandler(
		services.NewTaskService(taskRepo),
		services.NewLogService(logRepo),
		log,
	)
	r := routes.SetupServerRoutes(newEngine(log), remote)
	return serve(ctx, log, fmt.Sprintf(":%d", cfg.Server.Port), r)
}

// OpenKV picks the storage backend named by agent.storage.
func OpenKV(ctx context.Context, cfg *config.Config) (storage.KV, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Agent.Storage {
	case "", "file":
		kv, err := storage.NewFileKV(cfg.Agent.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return kv, noop, nil
	case "redis":
		client, err := storage.DialRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisKV(client, cfg.Redis.Prefix), client.Close, nil
	case "sqlite":
		kv, err := storage.OpenSQLiteKV(ctx, filepath.Join(cfg.Agent.DataDir, sqliteFile))
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	case "memory":
		return storage.NewMemoryKV(), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown agent.storage %q (file, sqlite, redis, memory)", cfg.Agent.Storage)
}

func deliveries(cfg *config.Config, hub *notify.Hub, log *zap.SugaredLogger) []reminder.Delivery {
	out := []reminder.Delivery{reminder.NewLogDelivery(log), reminder.NewBannerDelivery(hub)}

	tg := cfg.Reminders.Telegram
	if tg.Token != "" {
		d, err := reminder.NewTelegramDelivery(tg.Token, tg.ChatID)
		if err != nil {
			log.Warnf("[agent][telegram][err] reminders will not go to Telegram: %v", err)
		} else {
			out = append(out, d)
		}
	}

	em := cfg.Reminders.Email
	if em.SMTPHost != "" && em.ToEmail != "" {
		out = append(out, reminder.NewEmailDelivery(em.SMTPHost, em.SMTPPort, em.SMTPUser, em.SMTPPassword, em.FromEmail, em.ToEmail))
	}
	return out
}

func newEngine(log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS())
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return r
}

func serve(ctx context.Context, log *zap.SugaredLogger, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// open event streams end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("[http][listen] %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Infof("[http][shutdown] %s", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
