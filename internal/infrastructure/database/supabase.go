package database

import (
	"fmt"

	"github.com/supabase-community/supabase-go"
)

const healthCheckTable = "geo_files"

// SupabaseClient Supabaseクライアントのラッパー
type SupabaseClient struct {
	Client *supabase.Client
	url    string
}

// NewSupabaseClient 新しいSupabaseクライアントを作成
func NewSupabaseClient(supabaseURL, supabaseAnonKey string) (*SupabaseClient, error) {
	if supabaseURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL環境変数が設定されていません")
	}
	if supabaseAnonKey == "" {
		return nil, fmt.Errorf("SUPABASE_ANON_KEY環境変数が設定されていません")
	}

	client, err := supabase.NewClient(supabaseURL, supabaseAnonKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("Supabaseクライアントの初期化に失敗: %w", err)
	}

	return &SupabaseClient{
		Client: client,
		url:    supabaseURL,
	}, nil
}

// GetClient Supabaseクライアントを取得
func (sc *SupabaseClient) GetClient() *supabase.Client {
	return sc.Client
}

// HealthCheck PostgREST 経由で geo_files を1行だけ読み、テーブルが公開されているか確認する
func (sc *SupabaseClient) HealthCheck() error {
	if sc.Client == nil {
		return fmt.Errorf("Supabaseクライアントが初期化されていません")
	}
	if _, _, err := sc.Client.From(healthCheckTable).Select("id", "", false).Limit(1, "").Execute(); err != nil {
		return fmt.Errorf("%s への問い合わせに失敗: %w", healthCheckTable, err)
	}
	return nil
}

// URL 接続先のプロジェクトURL
func (sc *SupabaseClient) URL() string {
	return sc.url
}
