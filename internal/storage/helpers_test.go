package storage

import "github.com/yepShinjo/ml-forecasting/internal/config"

func minioConfig(endpoint, access, secret, bucket string) config.StorageConfig {
	return config.StorageConfig{Endpoint: endpoint, AccessKey: access, SecretKey: secret, Bucket: bucket}
}
