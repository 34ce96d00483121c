package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hospiq-ai/platform/pkg/clinic"
	"github.com/hospiq-ai/platform/pkg/common/config"
	"github.com/hospiq-ai/platform/pkg/common/database"
	"github.com/hospiq-ai/platform/pkg/common/kafka"
	"github.com/hospiq-ai/platform/pkg/common/logger"
	"github.com/hospiq-ai/platform/pkg/predict"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres()

	repo := clinic.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to run migrations")
	}

	producer := kafka.NewProducer(cfg.KafkaTopic)
	defer producer.Close()

	predictor := predict.NewLinearPredictor(cfg.ModelArtifactDir)
	service := clinic.NewService(repo, predictor, predictor, producer, cfg.ShiftMinutes)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	clinic.NewHandler(service).Register(router.PathPrefix("/api/v1").Subrouter())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Queue Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Queue Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Queue Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
