package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var (
	storageClient   *storage.Client
	storageClientMu sync.Mutex
)

// GetStorageClient returns a Cloud Storage client used for downloading
// general-ledger export files. Uses Application Default Credentials unless
// STORAGE_CREDENTIALS_JSON is provided.
func GetStorageClient(ctx context.Context) (*storage.Client, error) {
	storageClientMu.Lock()
	defer storageClientMu.Unlock()

	if storageClient != nil {
		return storageClient, nil
	}

	credJSON := strings.TrimSpace(os.Getenv("STORAGE_CREDENTIALS_JSON"))

	var (
		c   *storage.Client
		err error
	)
	if credJSON != "" {
		c, err = storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		c, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, err
	}
	storageClient = c
	return storageClient, nil
}

// LedgerExportBucket is the bucket holding partner general-ledger exports.
func LedgerExportBucket() (string, error) {
	bucket := strings.TrimSpace(os.Getenv("LEDGER_EXPORT_BUCKET"))
	if bucket == "" {
		return "", errors.New("LEDGER_EXPORT_BUCKET not set")
	}
	return bucket, nil
}
