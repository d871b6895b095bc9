package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Gallery  GalleryConfig
	Codec    CodecConfig
	Matcher  MatcherConfig
	Ledger   LedgerConfig
	Session  SessionConfig
	Database DatabaseConfig
}

type GalleryConfig struct {
	Dir         string // directory of reference images
	Concurrency int    // parallel encodes during load
}

type CodecConfig struct {
	URL          string // face-embedding server, defaults to http://localhost:8000
	Dim          int    // embedding dimensionality, defaults to 128
	MaxImageSize int    // images are downscaled to this bound before upload
}

type MatcherConfig struct {
	Threshold   float64 // maximum Euclidean distance for a match (inclusive)
	IndexCutoff int     // gallery size at which matching switches to the HNSW index
}

type LedgerConfig struct {
	AuditLogPath string // append-only audit log, the source of truth
	CSVPath      string // derived Name,Date,Time projection
}

type SessionConfig struct {
	MultiFacePolicy string // "first" or "reject"
}

type DatabaseConfig struct {
	URL          string // optional PostgreSQL mirror for attendance rows
	MaxOpenConns int
	MaxIdleConns int
}

// defaultsFile mirrors the embedded defaults.yaml.
type defaultsFile struct {
	Codec struct {
		Dim          int `yaml:"dim"`
		MaxImageSize int `yaml:"max_image_size"`
	} `yaml:"codec"`
	Matcher struct {
		Threshold   float64 `yaml:"threshold"`
		IndexCutoff int     `yaml:"index_cutoff"`
	} `yaml:"matcher"`
	Gallery struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"gallery"`
	Session struct {
		MultiFacePolicy string `yaml:"multi_face_policy"`
	} `yaml:"session"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a fallback.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// Embedded file; this should never happen in practice.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Gallery: GalleryConfig{
			Dir:         envString("GALLERY_DIR", "known_faces"),
			Concurrency: envInt("GALLERY_CONCURRENCY", defaults.Gallery.Concurrency),
		},
		Codec: CodecConfig{
			URL:          os.Getenv("EMBEDDING_URL"),
			Dim:          envInt("EMBEDDING_DIM", defaults.Codec.Dim),
			MaxImageSize: envInt("EMBEDDING_MAX_IMAGE_SIZE", defaults.Codec.MaxImageSize),
		},
		Matcher: MatcherConfig{
			Threshold:   envFloat("MATCH_THRESHOLD", defaults.Matcher.Threshold),
			IndexCutoff: envInt("MATCH_INDEX_CUTOFF", defaults.Matcher.IndexCutoff),
		},
		Ledger: LedgerConfig{
			AuditLogPath: envString("AUDIT_LOG_PATH", "attendance_log.txt"),
			CSVPath:      envString("ATTENDANCE_CSV_PATH", "attendance.csv"),
		},
		Session: SessionConfig{
			MultiFacePolicy: envString("MULTI_FACE_POLICY", defaults.Session.MultiFacePolicy),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
	}
}
