package main

import (
	"context"
	"encoding/json"
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
	"github.com/hospiq-ai/platform/pkg/engine"
	"github.com/hospiq-ai/platform/pkg/forecast"
	"github.com/hospiq-ai/platform/pkg/predict"
	"github.com/hospiq-ai/platform/pkg/rebalance"
	"github.com/hospiq-ai/platform/pkg/rl"
)

type OptimizerService struct {
	engine     *engine.Service
	rebalancer *rebalance.Service
	forecaster *forecast.Forecaster
	qtable     rl.Store
}

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

	params, err := engine.LoadParams(cfg.EngineParamsFile)
	if err != nil {
		logger.Log.WithError(err).Warn("Failed to load engine params, using defaults")
	}

	qtableStore := rl.NewRedisStore(database.GetRedis(), cfg.QTableKey)
	selector := rl.NewSelector(qtableStore, params.ActionNames(), params.Epsilon, params.Alpha, params.Gamma, time.Now().UnixNano())

	forecaster := forecast.NewForecaster(repo, cfg.ArrivalLookbackHrs)
	predictor := predict.NewLinearPredictor(cfg.ModelArtifactDir)

	service := &OptimizerService{
		engine:     engine.NewService(repo, forecaster, selector, predictor, params),
		rebalancer: rebalance.NewService(repo),
		forecaster: forecaster,
		qtable:     qtableStore,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go engine.NewRunner(service.engine, cfg.OptimizerInterval).Run(ctx)

	rebalanceRunner := rebalance.NewRunner(service.rebalancer, cfg.RebalancerInterval)
	go rebalanceRunner.Run(ctx)

	consumer := kafka.NewConsumer(cfg.KafkaTopic, cfg.KafkaGroupID)
	defer consumer.Close()
	go func() {
		if err := consumer.Consume(ctx, rebalanceRunner.HandleEvent); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Error("Event consumer stopped")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/api/v1/optimize", service.handleOptimizeAll).Methods("POST")
	router.HandleFunc("/api/v1/optimize/{department}", service.handleOptimize).Methods("POST")
	router.HandleFunc("/api/v1/rebalance/{department}", service.handleRebalance).Methods("POST")
	router.HandleFunc("/api/v1/metrics/{department}", service.handleMetrics).Methods("GET")
	router.HandleFunc("/api/v1/qtable", service.handleQTable).Methods("GET")

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
		}).Info("Optimizer Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Optimizer Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Optimizer Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *OptimizerService) handleOptimizeAll(w http.ResponseWriter, r *http.Request) {
	go s.engine.RunGlobal(context.Background())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"optimization sweep started"}`))
}

func (s *OptimizerService) handleOptimize(w http.ResponseWriter, r *http.Request) {
	department := mux.Vars(r)["department"]

	result, err := s.engine.Optimize(r.Context(), department)
	if err != nil {
		logger.Log.WithError(err).WithField("department", department).Error("optimization failed")
		http.Error(w, "optimization failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *OptimizerService) handleRebalance(w http.ResponseWriter, r *http.Request) {
	department := mux.Vars(r)["department"]

	outcome, err := s.rebalancer.Rebalance(r.Context(), department)
	if err != nil {
		logger.Log.WithError(err).WithField("department", department).Error("rebalance failed")
		http.Error(w, "rebalance failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *OptimizerService) handleMetrics(w http.ResponseWriter, r *http.Request) {
	department := mux.Vars(r)["department"]

	score, err := s.engine.OptimizationScore(r.Context(), department)
	if err != nil {
		logger.Log.WithError(err).WithField("department", department).Error("failed to compute score")
		http.Error(w, "failed to compute metrics", http.StatusInternalServerError)
		return
	}
	fairness, err := s.engine.FairnessIndex(r.Context(), department)
	if err != nil {
		logger.Log.WithError(err).WithField("department", department).Error("failed to compute fairness index")
		http.Error(w, "failed to compute metrics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"department":         department,
		"optimization_score": score,
		"fairness_index":     fairness,
		"forecast_next_hour": s.forecaster.NextHour(r.Context(), department),
	})
}

func (s *OptimizerService) handleQTable(w http.ResponseWriter, r *http.Request) {
	table, version, err := s.qtable.Load(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to load q-table")
		http.Error(w, "failed to load q-table", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version": version,
		"table":   table,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
