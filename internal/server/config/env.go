package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment variable read by the server.
const envPrefix = "GOPHDRIVE_"

// parseEnv overlays GOPHDRIVE_* environment variables. A dotenv file is
// loaded first (the -env path, or ./.env when present); variables already
// set in the process environment take precedence over the file.
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlag(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	setString(&config.EndpointAddrHTTP, os.Getenv(envPrefix+"ADDR"))
	setString(&config.DatabaseDSN, os.Getenv(envPrefix+"DATABASE_DSN"))
	setString(&config.SecretKey, os.Getenv(envPrefix+"SECRET_KEY"))
	setString(&config.EncryptionPassphrase, os.Getenv(envPrefix+"ENCRYPTION_PASSPHRASE"))
	setString(&config.EncryptionSalt, os.Getenv(envPrefix+"ENCRYPTION_SALT"))
	setInt(&config.ChunkSize, envInt(envPrefix+"CHUNK_SIZE"))
	setInt(&config.FlushThreshold, envInt(envPrefix+"FLUSH_THRESHOLD"))
	setDuration(&config.FlushInterval, envDuration(envPrefix+"FLUSH_INTERVAL"))
	setDuration(&config.SweepInterval, envDuration(envPrefix+"SWEEP_INTERVAL"))
	setDuration(&config.OrphanTTL, envDuration(envPrefix+"ORPHAN_TTL"))
	setDuration(&config.CacheTTL, envDuration(envPrefix+"CACHE_TTL"))
	setString(&config.BlobBackend, os.Getenv(envPrefix+"BLOB_BACKEND"))
	setString(&config.BadgerPath, os.Getenv(envPrefix+"BADGER_PATH"))
	setString(&config.S3RootUser, os.Getenv(envPrefix+"S3_ROOT_USER"))
	setString(&config.S3RootPassword, os.Getenv(envPrefix+"S3_ROOT_PASSWORD"))
	setString(&config.S3Bucket, os.Getenv(envPrefix+"S3_BUCKET"))
	setString(&config.S3Region, os.Getenv(envPrefix+"S3_REGION"))
	setString(&config.S3BaseEndpoint, os.Getenv(envPrefix+"S3_BASE_ENDPOINT"))
	setString(&config.LogLevel, os.Getenv(envPrefix+"LOG_LEVEL"))
}

// envInt returns 0 for unset or malformed values so they do not override.
func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envDuration(key string) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
