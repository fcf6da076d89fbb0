package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// PostgreSQLClient PostGIS接続クライアント
type PostgreSQLClient struct {
	DB *sql.DB
}

// NewPostgreSQLClient 新しいPostgreSQLクライアントを作成
func NewPostgreSQLClient(databaseURL string, maxOpenConns int) (*PostgreSQLClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL環境変数が設定されていません")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("PostgreSQL接続の初期化に失敗: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("PostgreSQLへの接続に失敗: %w", err)
	}

	return &PostgreSQLClient{
		DB: db,
	}, nil
}

// EnsureSchema PostGIS拡張とテーブルを作成する（存在する場合は何もしない）
func (pc *PostgreSQLClient) EnsureSchema(ctx context.Context) error {
	if _, err := pc.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("スキーマの作成に失敗: %w", err)
	}
	log.Info().Msg("✅ PostGISスキーマを確認しました")
	return nil
}

// WithTx fn をトランザクション内で実行する。fn がエラーを返した場合はロールバックする
func (pc *PostgreSQLClient) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := pc.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("❌ ロールバックに失敗しました")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// Close データベース接続を閉じる
func (pc *PostgreSQLClient) Close() error {
	if pc.DB != nil {
		return pc.DB.Close()
	}
	return nil
}

// HealthCheck データベース接続のヘルスチェック
func (pc *PostgreSQLClient) HealthCheck(ctx context.Context) error {
	if pc.DB == nil {
		return fmt.Errorf("PostgreSQLクライアントが初期化されていません")
	}
	return pc.DB.PingContext(ctx)
}
