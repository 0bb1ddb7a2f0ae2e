package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
	"github.com/dmitrijs2005/gophdrive/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations accept "30s" style
// strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP     string         `json:"endpoint_addr_http"`
	DatabaseDSN          string         `json:"database_dsn"`
	SecretKey            string         `json:"secret_key"`
	EncryptionPassphrase string         `json:"encryption_passphrase"`
	EncryptionSalt       string         `json:"encryption_salt"`
	ChunkSize            int            `json:"chunk_size"`
	FlushThreshold       int            `json:"flush_threshold"`
	FlushInterval        timex.Duration `json:"flush_interval"`
	SweepInterval        timex.Duration `json:"sweep_interval"`
	OrphanTTL            timex.Duration `json:"orphan_ttl"`
	CacheTTL             timex.Duration `json:"cache_ttl"`
	BlobBackend          string         `json:"blob_backend"`
	BadgerPath           string         `json:"badger_path"`
	S3RootUser           string         `json:"s3_root_user"`
	S3RootPassword       string         `json:"s3_root_password"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	LogLevel             string         `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c/-config.
// Keys absent from the file keep their current values. An unreadable or
// malformed file panics: the server must not start half-configured.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.EncryptionPassphrase, c.EncryptionPassphrase)
	setString(&config.EncryptionSalt, c.EncryptionSalt)
	setInt(&config.ChunkSize, c.ChunkSize)
	setInt(&config.FlushThreshold, c.FlushThreshold)
	setDuration(&config.FlushInterval, c.FlushInterval.Duration)
	setDuration(&config.SweepInterval, c.SweepInterval.Duration)
	setDuration(&config.OrphanTTL, c.OrphanTTL.Duration)
	setDuration(&config.CacheTTL, c.CacheTTL.Duration)
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.BadgerPath, c.BadgerPath)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
}
