package firestore

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// FirestoreClient 取り込みレポート保存用のFirestoreクライアント
type FirestoreClient struct {
	client *firestore.Client
}

// NewFirestoreClient GOOGLE_APPLICATION_CREDENTIALS があればそのファイルで、なければデフォルト認証で接続する
func NewFirestoreClient(ctx context.Context, projectID string) (*FirestoreClient, error) {
	if projectID == "" {
		return nil, fmt.Errorf("FIRESTORE_PROJECT_IDが設定されていません")
	}

	opts := credentialOptions()
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.Info().Str("project", projectID).Msg("✅ Firestore client initialized")
	return &FirestoreClient{client: client}, nil
}

// credentialOptions Cloud Run ではデフォルト認証、ローカルでは認証ファイルを使う
func credentialOptions() []option.ClientOption {
	if os.Getenv("K_SERVICE") != "" {
		log.Info().Msg("☁️ Cloud Run環境: デフォルト認証を使用")
		return nil
	}

	credentialsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	if credentialsFile == "" {
		return nil
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		log.Warn().Str("file", credentialsFile).Msg("⚠️ Credentials file not found, trying with default authentication")
		return nil
	}

	log.Info().Str("file", credentialsFile).Msg("📄 Using credentials file")
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}

func (fc *FirestoreClient) Close() error {
	return fc.client.Close()
}

func (fc *FirestoreClient) GetClient() *firestore.Client {
	return fc.client
}
