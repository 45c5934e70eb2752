// Точка входа Document Registry — реестра и репозитория клинических документов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/goartstore/document-registry/internal/api/handlers"
	"github.com/bigkaa/goartstore/document-registry/internal/api/middleware"
	"github.com/bigkaa/goartstore/document-registry/internal/api/openapi"
	"github.com/bigkaa/goartstore/document-registry/internal/app"
	"github.com/bigkaa/goartstore/document-registry/internal/config"
	"github.com/bigkaa/goartstore/document-registry/internal/database"
	"github.com/bigkaa/goartstore/document-registry/internal/server"
	"github.com/bigkaa/goartstore/document-registry/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Document Registry запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("backend", cfg.RegistryBackend),
		slog.String("data_dir", cfg.DataDir),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Контракт API
	if _, err := openapi.GetSwagger(ctx); err != nil {
		return err
	}

	// 2. Компоненты реестра
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// 3. Фоновые процессы
	a.StartBackground(ctx)
	defer a.StopBackground()

	// 3.1 topologymetrics — мониторинг зависимостей
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     cfg.ServiceID,
		Group:         cfg.DephealthGroup,
		DB:            a.SQLDB(),
		PGConnURL:     fmt.Sprintf("postgres://%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName),
		JWKSURL:       cfg.JWKSUrl,
		TLSSkipVerify: cfg.TLSSkipVerify,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer dephealthSvc.Stop()
	}

	// 4. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWKSOptions{
		URL:             cfg.JWKSUrl,
		CACertPath:      cfg.JWKSCACert,
		SkipVerify:      cfg.TLSSkipVerify,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
	}, logger)
	if err != nil {
		return fmt.Errorf("ошибка инициализации JWT: %w", err)
	}

	// 5. Handlers
	checkers := []handlers.ReadinessChecker{
		handlers.NewDirChecker("filesystem", cfg.DataDir, true),
		handlers.NewDirChecker("wal", cfg.WALDir, false),
	}
	if a.Pool != nil {
		checkers = append(checkers, database.NewReadinessChecker(a.Pool))
	}

	apiHandler := handlers.NewAPIHandler(
		handlers.NewDocumentsHandler(a.Facade, cfg.MaxDocumentSize),
		handlers.NewGroupsHandler(a.Facade),
		handlers.NewMaintenanceHandler(a.Reconcile),
		handlers.NewHealthHandler(checkers...),
	)

	// 6. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("Document Registry остановлен")
	return nil
}
