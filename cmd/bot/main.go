package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"whatsapp-salesbot/internal/agent"
	"whatsapp-salesbot/internal/api"
	"whatsapp-salesbot/internal/config"
	"whatsapp-salesbot/internal/database"
	"whatsapp-salesbot/internal/fleet"
	"whatsapp-salesbot/internal/message"
	"whatsapp-salesbot/internal/notify"
	"whatsapp-salesbot/internal/processor"
	"whatsapp-salesbot/internal/session"
	"whatsapp-salesbot/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	bots, settings, err := config.LoadBots(cfg.BotsFile)
	if err != nil {
		logger.Fatal("bots config", zap.Error(err))
	}
	templates, err := config.LoadTemplates(cfg.MessagesFile)
	if err != nil {
		logger.Fatal("message templates", zap.Error(err))
	}
	// A missing Default template must stop the process here, not mid-send.
	formatter, err := message.NewFormatter(templates)
	if err != nil {
		logger.Fatal("message templates", zap.Error(err))
	}

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}

	st := store.New(db, cfg.OwnerAllowList, logger, nil)
	mailer := notify.NewMailer(cfg.MailServer, cfg.MailPort, cfg.MailUser, cfg.MailPass,
		cfg.MailSender, cfg.ReportErrorTo, cfg.ReportDailyTo, logger)

	// Deterministic start order keeps the stagger schedule stable across runs.
	names := make([]string, 0, len(bots))
	for name := range bots {
		names = append(names, name)
	}
	sort.Strings(names)

	var agents []fleet.Runner
	var sessions []*session.RodSession
	for _, name := range names {
		bc := bots[name]
		sess := session.NewRod(session.RodOptions{
			ProfileDir: bc.Profile,
			BrowserBin: cfg.BrowserBin,
			Headless:   cfg.Headless,
		}, logger.With(zap.String("bot", name)))
		sessions = append(sessions, sess)

		proc := processor.New(formatter, mailer, processor.Options{
			Bot:           name,
			CountryPrefix: cfg.CountryPrefix,
			DelayMin:      settings.DelayMin(),
			DelayMax:      settings.DelayMax(),
		}, logger.With(zap.String("bot", name)))

		agents = append(agents, agent.New(agent.Options{
			Name:         name,
			Campuses:     bc.Campuses,
			BatchSize:    settings.BatchSize,
			PollInterval: settings.PollInterval(),
		}, st, proc, sess, logger))
	}

	idlePing := func(ctx context.Context) error {
		var last error
		for _, sess := range sessions {
			if err := sess.KeepAlive(ctx); err != nil {
				last = err
			}
		}
		return last
	}

	sup := fleet.New(agents, fleet.Options{
		StaggerDelay:    settings.StaggerDelay(),
		IdleInterval:    settings.AntiLockInterval(),
		DailyReportTime: cfg.DailyReportTime,
	}, idlePing, st, mailer, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(ctx)
	})
	g.Go(func() error {
		return runOpsServer(ctx, cfg.Port, st, sup, logger)
	})

	logger.Info("whatsapp sales bot started",
		zap.Int("bots", len(agents)),
		zap.String("ops_port", cfg.Port))
	if err := g.Wait(); err != nil {
		logger.Fatal("shutdown with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func runOpsServer(ctx context.Context, port string, st *store.Store, sup *fleet.Supervisor, logger *zap.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	api.NewOpsHandler(st, sup).Register(r)

	srv := &http.Server{Addr: ":" + port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown", zap.Error(err))
		}
		return nil
	}
}
