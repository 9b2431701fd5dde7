package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/example/walkup/backend/internal/config"
	"github.com/example/walkup/backend/internal/db"
	httpserver "github.com/example/walkup/backend/internal/http"
	"github.com/example/walkup/backend/internal/menu"
	"github.com/example/walkup/backend/internal/models"
	"github.com/example/walkup/backend/internal/mq"
	"github.com/example/walkup/backend/internal/repository"
	"github.com/example/walkup/backend/internal/service"
	"github.com/example/walkup/backend/internal/worker"
)

func main() {
	log := logrus.StandardLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	classifier := menu.DefaultClassifier()

	var store repository.Store
	if cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL not set, using in-memory store")
		store = repository.NewMemory()
	} else {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("connect database: %v", err)
		}
		autoMigrate(database)
		store = repository.NewGorm(database)
	}

	var events mq.Publisher
	publisher, err := mq.NewRabbitPublisher(cfg.MQURL, cfg.MQExchange)
	if err != nil {
		log.Warnf("rabbitmq unavailable (%v), continuing without events", err)
	} else {
		events = publisher
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warnf("invalid QUEUE_TIMEZONE %q, using local time: %v", cfg.Timezone, err)
		loc = time.Local
	}

	queueService := service.NewQueueService(store, classifier, events, log, loc)
	settingsService := service.NewSettingsService(store, classifier)
	apiServer := httpserver.NewServer(queueService, settingsService)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	watcher := worker.NewStockWatcher(store, classifier, events, cfg.StockPollInterval, log)
	go watcher.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: apiServer.Engine,
	}

	go func() {
		log.Infof("HTTP server listening on %s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("server shutdown error: %v", err)
	}

	if publisher != nil {
		_ = publisher.Close()
	}
	log.Info("bye")
}

func autoMigrate(db *gorm.DB) {
	if err := db.AutoMigrate(&models.Ticket{}, &models.Settings{}); err != nil {
		logrus.Fatalf("auto migrate: %v", err)
	}
}

func init() {
	if mode := os.Getenv("GIN_MODE"); mode == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
