package config

import (
	"errors"
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"GISData-App/internal/domain/model"
	"GISData-App/internal/logging"
)

// カタログの参照先
const (
	CatalogPostgres = "postgres"
	CatalogSupabase = "supabase"
)

// Options コマンドライン引数と環境変数から読み込む設定
type Options struct {
	Logger logging.Options `group:"Logger options"`

	Port            int    `short:"p" long:"port"            env:"PORT"              description:"HTTPサーバーのポート"                      default:"8080"`
	DatabaseURL     string `long:"database-url"              env:"DATABASE_URL"      description:"PostGIS接続文字列"`
	DBMaxOpenConns  int    `long:"db-max-open-conns"         env:"DB_MAX_OPEN_CONNS" description:"DB最大接続数"                           default:"10"`
	SupabaseURL     string `long:"supabase-url"              env:"SUPABASE_URL"      description:"SupabaseプロジェクトURL"`
	SupabaseAnonKey string `long:"supabase-anon-key"         env:"SUPABASE_ANON_KEY" description:"Supabase anonキー"`
	CatalogBackend  string `long:"catalog-backend"           env:"CATALOG_BACKEND"   description:"ファイル一覧の参照先"                   default:"postgres" choice:"postgres" choice:"supabase"`

	FirestoreProjectID   string `long:"firestore-project-id"    env:"FIRESTORE_PROJECT_ID"    description:"取り込みレポートを保存するFirestoreプロジェクト（空なら保存しない）"`
	UploadReportTTLHours int    `long:"upload-report-ttl-hours" env:"UPLOAD_REPORT_TTL_HOURS" description:"取り込みレポートの保持時間"       default:"72"`
	GCSBucket            string `long:"gcs-bucket"              env:"GCS_BUCKET"              description:"元ファイルを保管するバケット（空なら保管しない）"`
	MaxUploadMB          int64  `long:"max-upload-mb"           env:"MAX_UPLOAD_MB"           description:"アップロードサイズ上限（MB）"       default:"100"`
	ScratchDir           string `long:"scratch-dir"             env:"SCRATCH_DIR"             description:"一時ファイルの作成先（空ならOSの既定）"`

	CRSRulesFile           string `long:"crs-rules-file"            env:"CRS_RULES_FILE"            description:"CRS判定テーブル（YAML、空なら組み込みの既定値）"`
	CRSTransformDisabled   bool   `long:"crs-transform-disabled"    env:"CRS_TRANSFORM_DISABLED"    description:"座標変換を無効化する"`
	GeometryRepairDisabled bool   `long:"geometry-repair-disabled"  env:"GEOMETRY_REPAIR_DISABLED"  description:"ポリゴンのトポロジー修復を無効化する"`
	KMLLossyFallback       bool   `long:"kml-lossy-fallback"        env:"KML_LOSSY_FALLBACK"        description:"KML変換失敗時にGeoJSONを埋め込んだKMLを出力する"`
	FeatureErrorPolicy     string `long:"feature-error-policy"      env:"FEATURE_ERROR_POLICY"      description:"地物単位のエラー時の扱い"    default:"continue" choice:"continue" choice:"abort"`
}

// ErrHelp --help が指定された
var ErrHelp = errors.New("help requested")

// Load .env を読み込んだ上で引数と環境変数を解析する
func Load(args []string) (*Options, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}
	return Parse(args)
}

// Parse 引数と環境変数から Options を作成する
func Parse(args []string) (*Options, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, ErrHelp
		}
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Validate 組み合わせの整合性を確認する
func (o *Options) Validate() error {
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("PORT が不正です: %d", o.Port)
	}
	if o.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB は正の値を指定してください: %d", o.MaxUploadMB)
	}
	if o.UploadReportTTLHours <= 0 {
		return fmt.Errorf("UPLOAD_REPORT_TTL_HOURS は正の値を指定してください: %d", o.UploadReportTTLHours)
	}
	if o.DatabaseURL == "" {
		return errors.New("DATABASE_URL環境変数が設定されていません")
	}
	if o.CatalogBackend == CatalogSupabase && (o.SupabaseURL == "" || o.SupabaseAnonKey == "") {
		return errors.New("CATALOG_BACKEND=supabase には SUPABASE_URL と SUPABASE_ANON_KEY が必要です")
	}
	if _, ok := model.ParseFeatureErrorPolicy(o.FeatureErrorPolicy); !ok {
		return fmt.Errorf("FEATURE_ERROR_POLICY が不正です: %s", o.FeatureErrorPolicy)
	}
	return nil
}

// Policy 既定の地物エラーポリシー
func (o *Options) Policy() model.FeatureErrorPolicy {
	policy, _ := model.ParseFeatureErrorPolicy(o.FeatureErrorPolicy)
	return policy
}

// MaxUploadBytes アップロードサイズ上限（バイト）
func (o *Options) MaxUploadBytes() int64 {
	return o.MaxUploadMB << 20
}

// Addr gin の待ち受けアドレス
func (o *Options) Addr() string {
	return fmt.Sprintf(":%d", o.Port)
}
