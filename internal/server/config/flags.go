package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
)

// serverFlags lists every short flag owned by parseFlags.
var serverFlags = []string{
	"-a", "-d", "-s", "-k", "-x", "-n", "-f", "-i", "-w", "-o", "-l",
	"-m", "-y", "-u", "-p", "-b", "-g", "-e", "-v",
}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    HTTP bind address (e.g., ":8080")
//	-d string    PostgreSQL DSN
//	-s string    token HMAC secret key
//	-k string    chunk encryption passphrase
//	-x string    chunk encryption salt
//	-n int       chunk size, bytes
//	-f int       collaboration flush threshold, operations
//	-i duration  collaboration flush interval
//	-w duration  orphan chunk sweep interval
//	-o duration  minimum orphan chunk age before deletion
//	-l duration  metadata cache TTL
//	-m string    blob backend: s3 | badger
//	-y string    badger directory
//	-u string    S3 root user
//	-p string    S3 root password
//	-b string    S3 bucket name
//	-g string    S3 region
//	-e string    S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-v string    log level
//
// os.Args is filtered through flagx.FilterArgs first so -c/-config and -env,
// owned by the other layers, do not trip the parser.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.EncryptionPassphrase, "k", config.EncryptionPassphrase, "chunk encryption passphrase")
	fs.StringVar(&config.EncryptionSalt, "x", config.EncryptionSalt, "chunk encryption salt")
	fs.IntVar(&config.ChunkSize, "n", config.ChunkSize, "chunk size (bytes)")
	fs.IntVar(&config.FlushThreshold, "f", config.FlushThreshold, "operations buffered before a session snapshot")
	fs.DurationVar(&config.FlushInterval, "i", config.FlushInterval, "background session flush interval")
	fs.DurationVar(&config.SweepInterval, "w", config.SweepInterval, "orphan chunk sweep interval")
	fs.DurationVar(&config.OrphanTTL, "o", config.OrphanTTL, "minimum orphan chunk age")
	fs.DurationVar(&config.CacheTTL, "l", config.CacheTTL, "metadata cache TTL")
	fs.StringVar(&config.BlobBackend, "m", config.BlobBackend, "blob backend (s3|badger)")
	fs.StringVar(&config.BadgerPath, "y", config.BadgerPath, "badger directory")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
