// Точка входа Analysis Module — сервис анализа кода системы TestGen.
// Загружает конфигурацию, подключается к MongoDB, S3/DynamoDB и Neo4j,
// создаёт инвокеры анализатора, сервисный слой и API handlers,
// запускает фоновые проверки зависимостей, HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/arturkryukov/testgen/analysis-module/internal/analyzer"
	"github.com/arturkryukov/testgen/analysis-module/internal/api/handlers"
	"github.com/arturkryukov/testgen/analysis-module/internal/api/middleware"
	"github.com/arturkryukov/testgen/analysis-module/internal/config"
	"github.com/arturkryukov/testgen/analysis-module/internal/graphdb"
	"github.com/arturkryukov/testgen/analysis-module/internal/repository"
	"github.com/arturkryukov/testgen/analysis-module/internal/server"
	"github.com/arturkryukov/testgen/analysis-module/internal/service"
	"github.com/arturkryukov/testgen/analysis-module/internal/storage/filestore"
)

// Имена скриптов анализатора в каталоге AN_SCRIPTS_DIR.
const (
	scriptAnalyzeFiles    = "analyze_files.py"
	scriptAnalyzeCodebase = "analyze_codebase.py"
	scriptGuidelines      = "generate_guidelines.py"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Analysis Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// 3. Подключение к MongoDB (записи заданий)
	mongoClient, mongoDB, err := repository.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("Ошибка подключения к MongoDB", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			logger.Warn("Ошибка отключения от MongoDB", slog.String("error", err.Error()))
		}
	}()
	logger.Info("MongoDB подключена", slog.String("database", cfg.MongoDB))

	// 4. AWS-клиенты (S3 + DynamoDB). AN_AWS_ENDPOINT переключает
	// на MinIO/LocalStack с path-style адресацией.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Error("Ошибка загрузки AWS-конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
			o.UsePathStyle = true
		}
	})
	ddbClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
		}
	})
	presignClient := s3.NewPresignClient(s3Client)

	store := filestore.New(s3Client, presignClient, ddbClient, cfg.S3Bucket, cfg.DynamoTable, cfg.URLExpiry, logger)
	logger.Info("Blob-хранилище инициализировано",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("table", cfg.DynamoTable),
	)

	// 5. Клиент графа знаний (Neo4j)
	graphClient, err := graphdb.NewClient(ctx, graphdb.Config{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, logger)
	if err != nil {
		logger.Error("Ошибка подключения к Neo4j", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := graphClient.Close(closeCtx); err != nil {
			logger.Warn("Ошибка закрытия Neo4j-клиента", slog.String("error", err.Error()))
		}
	}()

	// 6. Инвокеры анализатора (по одному на скрипт)
	newInvoker := func(script string) *analyzer.Invoker {
		return analyzer.NewInvoker(analyzer.Config{
			Interpreter: cfg.PythonBin,
			ScriptPath:  filepath.Join(cfg.ScriptsDir, script),
			Timeout:     cfg.AnalysisTimeout,
			WorkDir:     cfg.WorkDir,
		}, logger)
	}
	fileInvoker := newInvoker(scriptAnalyzeFiles)
	codebaseInvoker := newInvoker(scriptAnalyzeCodebase)
	guidelineInvoker := newInvoker(scriptGuidelines)

	// 7. Repositories
	fileRepo := repository.NewFileReviewRepository(mongoDB)
	codebaseRepo := repository.NewCodebaseReviewRepository(mongoDB)
	guidelineRepo := repository.NewGuidelineRepository(mongoDB)

	// 8. Services
	runner := service.NewTaskRunner(logger)
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)

	reviewFileSvc := service.NewReviewFileService(fileRepo, store, fileInvoker, runner, logger)
	codebaseSvc := service.NewCodebaseService(codebaseRepo, store, codebaseInvoker, runner, logger)
	guidelineSvc := service.NewGuidelineService(guidelineRepo, store, guidelineInvoker, runner, logger)
	outputsSvc := service.NewOutputsService(store, store, cache, logger)

	// 9. Фоновые проверки зависимостей
	checks := []service.DependencyCheck{
		{
			Name:     "mongodb",
			Critical: true,
			Check: func(ctx context.Context) error {
				return mongoClient.Ping(ctx, readpref.Primary())
			},
		},
		{
			Name:     "s3",
			Critical: true,
			Check: func(ctx context.Context) error {
				_, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
					Bucket: aws.String(cfg.S3Bucket),
				})
				return err
			},
		},
		{
			Name:     "dynamodb",
			Critical: true,
			Check: func(ctx context.Context) error {
				_, err := ddbClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{
					TableName: aws.String(cfg.DynamoTable),
				})
				return err
			},
		},
		{
			// Недоступный Neo4j деградирует только graph-ручки,
			// конвейеры анализа продолжают работать.
			Name:     "neo4j",
			Critical: false,
			Check:    graphClient.CheckReady,
		},
	}

	// 10. JWT middleware (опционально — AN_JWKS_URL пуст -> auth выключена)
	var jwtAuth *middleware.JWTAuth
	if cfg.AuthEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWKSURL,
			cfg.JWKSCACert,
			cfg.JWTIssuer,
			cfg.AdminGroups,
			cfg.ReadonlyGroups,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)

		kcChecker, kcErr := middleware.NewKeycloakReadinessChecker(cfg.JWKSURL, cfg.JWKSCACert, cfg.JWKSClientTimeout)
		if kcErr != nil {
			logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", kcErr.Error()))
			os.Exit(1)
		}
		checks = append(checks, service.DependencyCheck{
			Name:     "keycloak",
			Critical: false,
			Check:    kcChecker.CheckReady,
		})
	} else {
		logger.Warn("AN_JWKS_URL не задан — аутентификация выключена")
	}

	readiness := service.NewReadinessService(checks, cfg.ReadinessInterval, logger)
	readiness.Start(ctx)

	// 11. API handlers
	healthHandler := handlers.NewHealthHandler(readiness)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		reviewFileSvc,
		codebaseSvc,
		guidelineSvc,
		outputsSvc,
		graphClient,
		handlers.Limits{
			MaxUpload:          cfg.MaxFileSize * int64(cfg.MaxFiles+cfg.MaxAdditionalFiles+1),
			MaxCodebaseUpload:  cfg.MaxCodebaseSize,
			MaxFileSize:        cfg.MaxFileSize,
			MaxFiles:           cfg.MaxFiles,
			MaxAdditionalFiles: cfg.MaxAdditionalFiles,
		},
		logger,
	)

	// 12. HTTP-сервер с middleware. При включённой аутентификации
	// приём заданий требует роль admin или scope analysis:write,
	// чтение — роль admin/readonly или scope analysis:read.
	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
	}
	var guards server.Guards
	if jwtAuth != nil {
		middlewares = append(middlewares,
			jwtAuth.MiddlewareWithExclusions([]string{"/health/", "/metrics"}))
		guards = server.Guards{
			Read: middleware.RequireRoleOrScope(
				[]string{middleware.RoleAdmin, middleware.RoleReadonly},
				[]string{middleware.ScopeAnalysisRead, middleware.ScopeAnalysisWrite},
			),
			Write: middleware.RequireRoleOrScope(
				[]string{middleware.RoleAdmin},
				[]string{middleware.ScopeAnalysisWrite},
			),
		}
	}
	srv := server.New(cfg, logger, apiHandler, guards, middlewares...)

	// 13. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
	}

	// 14. Остановка фоновых компонентов: сначала дожидаемся
	// незавершённых заданий анализа, затем останавливаем проверки.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Фоновые задания не завершились вовремя", slog.String("error", err.Error()))
	}
	readiness.Stop()

	logger.Info("Analysis Module остановлен")
}
