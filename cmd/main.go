package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"GISData-App/internal/config"
	"GISData-App/internal/domain/converter"
	"GISData-App/internal/domain/coordinate"
	"GISData-App/internal/domain/parser"
	domainrepo "GISData-App/internal/domain/repository"
	"GISData-App/internal/handler"
	"GISData-App/internal/infrastructure/database"
	"GISData-App/internal/infrastructure/firestore"
	"GISData-App/internal/infrastructure/geos"
	"GISData-App/internal/infrastructure/observability"
	"GISData-App/internal/infrastructure/storage"
	"GISData-App/internal/repository"
	"GISData-App/internal/usecase"
)

func main() {
	opts, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal().Err(err).Msg("❌ 設定の読み込みに失敗")
	}
	opts.Logger.Setup()

	ctx := context.Background()

	log.Info().Msg("🗄️ PostgreSQLクライアントを初期化中...")
	pgClient, err := database.NewPostgreSQLClient(opts.DatabaseURL, opts.DBMaxOpenConns)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ PostgreSQLクライアント初期化失敗")
	}
	defer pgClient.Close()

	if err := pgClient.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ スキーマの作成に失敗")
	}
	log.Info().Msg("✅ PostgreSQL connection successful!")

	fileRepo := repository.NewPostgresFileRepository(pgClient)
	featureRepo := repository.NewPostgresFeatureRepository(pgClient)

	var catalog domainrepo.FileCatalog
	if opts.CatalogBackend == config.CatalogSupabase {
		supabaseClient, err := database.NewSupabaseClient(opts.SupabaseURL, opts.SupabaseAnonKey)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Supabaseクライアント初期化失敗")
		}
		if err := supabaseClient.HealthCheck(); err != nil {
			log.Fatal().Err(err).Msg("❌ Supabaseヘルスチェック失敗")
		}
		catalog = repository.NewSupabaseFileCatalog(supabaseClient)
		log.Info().Str("url", supabaseClient.URL()).Msg("✅ Supabaseをファイル一覧の参照先に使用")
	}

	reportRepo := repository.NewNoopUploadReportRepository()
	if opts.FirestoreProjectID != "" {
		fsClient, err := firestore.NewFirestoreClient(ctx, opts.FirestoreProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Firestoreクライアント初期化失敗")
		}
		defer fsClient.Close()
		reportRepo = repository.NewFirestoreUploadReportRepository(fsClient.GetClient())
	} else {
		log.Warn().Msg("⚠️ FIRESTORE_PROJECT_ID が未設定のため取り込みレポートは保存しません")
	}

	var blobs domainrepo.BlobStore
	if opts.GCSBucket != "" {
		gcsClient, err := storage.NewGCSClient(ctx, opts.GCSBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ GCSクライアント初期化失敗")
		}
		defer gcsClient.Close()
		blobs = repository.NewGCSBlobStore(gcsClient)
	}

	pipeline, err := newPipeline(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ 座標パイプラインの初期化に失敗")
	}

	collector, err := observability.NewGeoCollector(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ メトリクスの初期化に失敗")
	}

	uploadUseCase := usecase.NewUploadUseCase(
		parser.NewParser(opts.ScratchDir),
		pipeline,
		fileRepo,
		reportRepo,
		blobs,
		collector,
		usecase.UploadConfig{
			MaxBytes:       opts.MaxUploadBytes(),
			DefaultPolicy:  opts.Policy(),
			ReportTTLHours: opts.UploadReportTTLHours,
		},
	)
	fileUseCase := usecase.NewFileUseCase(fileRepo, catalog, featureRepo, reportRepo, blobs)
	featureUseCase := usecase.NewFeatureUseCase(featureRepo, pipeline)
	exportUseCase := usecase.NewExportUseCase(
		fileRepo,
		featureRepo,
		converter.NewConverter(opts.ScratchDir, opts.KMLLossyFallback),
		collector,
	)

	router := handler.NewRouter(handler.RouterDeps{
		Files:    handler.NewFileHandler(uploadUseCase, fileUseCase, exportUseCase, opts.MaxUploadBytes()),
		Features: handler.NewFeatureHandler(featureUseCase),
		Health:   pgClient,
		Metrics:  collector,
	})
	// multipart のメモリ上限。超えた分は一時ファイルに書き出される
	router.MaxMultipartMemory = 32 << 20

	srv := &http.Server{
		Addr:    opts.Addr(),
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("🚀 GISData-App server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ サーバーが異常終了")
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	log.Info().Msg("🛑 シャットダウン中...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("❌ シャットダウンに失敗")
	}
}

// newPipeline 設定に応じて座標変換・修復を無効化したパイプラインを作る
func newPipeline(opts *config.Options) (*coordinate.Pipeline, error) {
	rules, err := coordinate.LoadRuleTable(opts.CRSRulesFile)
	if err != nil {
		return nil, err
	}

	var transformer coordinate.Transformer
	if !opts.CRSTransformDisabled {
		transformer = coordinate.NewUTMTransformer()
	} else {
		log.Warn().Msg("⚠️ 座標変換が無効です。UTM座標の地物は取り込めません")
	}

	var repairer coordinate.Repairer
	if !opts.GeometryRepairDisabled {
		repairer = geos.NewBufferRepairer()
	}

	return coordinate.NewPipeline(coordinate.NewDetector(rules), transformer, repairer), nil
}
