// Package config centralizes how PhotoFlow reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration for the service. Struct fields in Go
// begin with capital letters when they must be exported (visible to other
// packages), while lower-case fields remain private.
type Config struct {
	Address           string
	DataDir           string
	UploadDir         string
	MaxFileSize       int64
	MaxFilesPerUpload int
	AllowedTypes      []string

	TickInterval       time.Duration
	ProcessingDuration time.Duration
	SuccessRate        float64
	EventBuffer        int

	SigningSecret []byte
	SignedURLTTL  time.Duration

	// S3Endpoint left empty selects the local disk backend for photo bytes.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool
}

const (
	// const declares compile-time constants; shifts work on integers so
	// 25 << 20 equals 25 * 2^20 bytes.
	defaultAddress      = ":4000"
	defaultDataDir      = "data"
	defaultUploadDir    = "uploads"
	defaultMaxFileSize  = 25 << 20 // 25 MiB
	defaultMaxFiles     = 20
	defaultAllowedTypes = "image/png,image/jpeg,image/gif,image/webp"
	defaultTick         = 2 * time.Second
	defaultDuration     = 5 * time.Second
	defaultSuccessRate  = 0.8
	defaultEventBuffer  = 16
	defaultSignedTTL    = 5 * time.Minute
	defaultS3Bucket     = "photoflow"
)

// Load reads configuration from environment variables falling back to
// defaults. It follows Go's convention of returning (value, error) so callers
// can handle failures rather than panicking.
func Load() (*Config, error) {
	cfg := &Config{
		// Struct literal syntax assigns values to each exported field.
		Address:           readEnv("PHOTOFLOW_ADDRESS", defaultAddress),
		DataDir:           readEnv("PHOTOFLOW_DATA_DIR", defaultDataDir),
		UploadDir:         readEnv("PHOTOFLOW_UPLOAD_DIR", defaultUploadDir),
		MaxFileSize:       parseInt64("PHOTOFLOW_MAX_FILE_BYTES", defaultMaxFileSize),
		MaxFilesPerUpload: parseInt("PHOTOFLOW_MAX_FILES", defaultMaxFiles),
		AllowedTypes:      parseList("PHOTOFLOW_ALLOWED_TYPES", defaultAllowedTypes),

		TickInterval:       parseDuration("PHOTOFLOW_TICK_INTERVAL", defaultTick),
		ProcessingDuration: parseDuration("PHOTOFLOW_PROCESSING_DURATION", defaultDuration),
		SuccessRate:        parseFloat("PHOTOFLOW_SUCCESS_RATE", defaultSuccessRate),
		EventBuffer:        parseInt("PHOTOFLOW_EVENT_BUFFER", defaultEventBuffer),

		SigningSecret: parseSecret("PHOTOFLOW_SIGNING_SECRET"),
		SignedURLTTL:  parseDuration("PHOTOFLOW_SIGNED_TTL", defaultSignedTTL),

		S3Endpoint:  readEnv("PHOTOFLOW_S3_ENDPOINT", ""),
		S3AccessKey: readEnv("PHOTOFLOW_S3_ACCESS_KEY", ""),
		S3SecretKey: readEnv("PHOTOFLOW_S3_SECRET_KEY", ""),
		S3Bucket:    readEnv("PHOTOFLOW_S3_BUCKET", defaultS3Bucket),
		S3Region:    readEnv("PHOTOFLOW_S3_REGION", ""),
		S3UseSSL:    parseBool("PHOTOFLOW_S3_USE_SSL", false),
	}
	if cfg.SigningSecret == nil {
		// If no secret was supplied we generate one using crypto/rand.
		cfg.SigningSecret = randomSecret()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.MaxFilesPerUpload <= 0 {
		cfg.MaxFilesPerUpload = defaultMaxFiles
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTick
	}
	if cfg.ProcessingDuration <= 0 {
		cfg.ProcessingDuration = defaultDuration
	}
	if cfg.SuccessRate <= 0 || cfg.SuccessRate > 1 {
		cfg.SuccessRate = defaultSuccessRate
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	// LookupEnv returns (value, true) when the variable is present, mirroring
	// Go's pattern of providing extra information via multiple return values.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	// strings.Split returns a slice (dynamic array) of substrings that we trim.
	val := readEnv(key, def)
	out := strings.Split(val, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	// strconv.ParseInt converts strings to integers; Go treats errors as values
	// so we simply ignore invalid input and return the default.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	// In Go, a string can be converted to a []byte slice to work with binary
	// data such as HMAC secrets.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	// crypto/rand.Read fills a byte slice with secure random data; we return the
	// slice so callers can use it immediately without extra allocations.
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
