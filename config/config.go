// Package config resolves the service configuration from defaults, an
// optional YAML file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FallbackRule flags Term when it appears in an unstructured verdict.
type FallbackRule struct {
	Term           string `yaml:"term" json:"term" validate:"required"`
	Severity       string `yaml:"severity" json:"severity"`
	Recommendation string `yaml:"recommendation" json:"recommendation"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
	DBName   string `yaml:"db_name" json:"db_name"`
}

func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

type QdrantConfig struct {
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	Collection string `yaml:"collection" json:"collection"`
}

type Config struct {
	ServerAddr string `yaml:"server_addr" json:"server_addr"`
	LogLevel   string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`

	DataDir      string `yaml:"data_dir" json:"data_dir" validate:"required"`
	CorpusDir    string `yaml:"corpus_dir" json:"corpus_dir"`
	TemplatesDir string `yaml:"templates_dir" json:"templates_dir"`
	UploadsDir   string `yaml:"uploads_dir" json:"uploads_dir"`
	OutputDir    string `yaml:"output_dir" json:"output_dir"`

	VectorBackend string         `yaml:"vector_backend" json:"vector_backend" validate:"oneof=sqlite postgres qdrant"`
	VectorDir     string         `yaml:"vector_dir" json:"vector_dir"`
	Postgres      PostgresConfig `yaml:"postgres" json:"postgres"`
	Qdrant        QdrantConfig   `yaml:"qdrant" json:"qdrant"`

	EmbedProvider string  `yaml:"embed_provider" json:"embed_provider" validate:"oneof=ollama openai hash"`
	EmbedModel    string  `yaml:"embed_model" json:"embed_model"`
	EmbedURL      string  `yaml:"embed_url" json:"embed_url"`
	EmbedDim      int     `yaml:"embed_dim" json:"embed_dim" validate:"gt=0"`
	EmbedRPS      float64 `yaml:"embed_rps" json:"embed_rps" validate:"gte=0"`

	ChunkSize    int `yaml:"chunk_size" json:"chunk_size" validate:"gt=0"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	RetrieveK    int `yaml:"retrieve_k" json:"retrieve_k" validate:"gt=0"`
	SnippetChars int `yaml:"snippet_chars" json:"snippet_chars" validate:"gt=0"`

	LLMProvider       string        `yaml:"llm_provider" json:"llm_provider" validate:"oneof=ollama tgi openai"`
	LLMModel          string        `yaml:"llm_model" json:"llm_model"`
	LLMURL            string        `yaml:"llm_url" json:"llm_url"`
	TGIURL            string        `yaml:"tgi_url" json:"tgi_url"`
	OpenAIAPIKey      string        `yaml:"openai_api_key" json:"-"`
	OpenAIBaseURL     string        `yaml:"openai_base_url" json:"openai_base_url"`
	GenerationTimeout time.Duration `yaml:"generation_timeout" json:"generation_timeout" validate:"gt=0"`
	MaxPromptTokens   int           `yaml:"max_prompt_tokens" json:"max_prompt_tokens" validate:"gte=0"`

	FallbackRules []FallbackRule `yaml:"fallback_rules" json:"fallback_rules" validate:"dive"`
}

func Default() *Config {
	return &Config{
		ServerAddr:    ":8080",
		LogLevel:      "info",
		DataDir:       "./data",
		VectorBackend: "sqlite",
		VectorDir:     "./vector_store",
		Postgres: PostgresConfig{
			Host:   "localhost",
			Port:   5432,
			User:   "postgres",
			DBName: "rag",
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "reference_corpus",
		},
		EmbedProvider:     "ollama",
		EmbedModel:        "all-minilm",
		EmbedURL:          "http://localhost:11434/api/embeddings",
		EmbedDim:          384,
		ChunkSize:         1000,
		ChunkOverlap:      200,
		RetrieveK:         6,
		SnippetChars:      4000,
		LLMProvider:       "ollama",
		LLMModel:          "llama3",
		LLMURL:            "http://localhost:11434/api/generate",
		TGIURL:            "http://tgi:8080",
		GenerationTimeout: 120 * time.Second,
		MaxPromptTokens:   6000,
		FallbackRules: []FallbackRule{{
			Term:           "jurisdiction",
			Severity:       "High",
			Recommendation: "Ensure jurisdiction specifies 'ADGM' and ADGM Courts where applicable.",
		}},
	}
}

// Load builds a Config. An empty path or a missing file means defaults plus
// environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDerivedDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyDerivedDefaults() {
	if c.CorpusDir == "" {
		c.CorpusDir = filepath.Join(c.DataDir, "adgm_reference")
	}
	if c.TemplatesDir == "" {
		c.TemplatesDir = filepath.Join(c.DataDir, "templates")
	}
	if c.UploadsDir == "" {
		c.UploadsDir = filepath.Join(c.DataDir, "uploads")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.DataDir, "reviewed")
	}
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// EnsureDirectories creates every directory the service writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.CorpusDir, c.TemplatesDir, c.UploadsDir, c.OutputDir}
	if c.VectorBackend == "sqlite" {
		dirs = append(dirs, c.VectorDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(c *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"SERVER_ADDR":       &c.ServerAddr,
		"LOG_LEVEL":         &c.LogLevel,
		"DATA_DIR":          &c.DataDir,
		"CORPUS_DIR":        &c.CorpusDir,
		"TEMPLATES_DIR":     &c.TemplatesDir,
		"UPLOADS_DIR":       &c.UploadsDir,
		"OUTPUT_DIR":        &c.OutputDir,
		"VECTOR_BACKEND":    &c.VectorBackend,
		"VECTOR_DIR":        &c.VectorDir,
		"PG_HOST":           &c.Postgres.Host,
		"PG_USER":           &c.Postgres.User,
		"PG_PASS":           &c.Postgres.Password,
		"PG_DB_NAME":        &c.Postgres.DBName,
		"QDRANT_HOST":       &c.Qdrant.Host,
		"QDRANT_COLLECTION": &c.Qdrant.Collection,
		"EMBED_PROVIDER":    &c.EmbedProvider,
		"EMBED_MODEL":       &c.EmbedModel,
		"EMBED_URL":         &c.EmbedURL,
		"LLM_PROVIDER":      &c.LLMProvider,
		"LLM_MODEL":         &c.LLMModel,
		"LLM_URL":           &c.LLMURL,
		"TGI_URL":           &c.TGIURL,
		"OPENAI_API_KEY":    &c.OpenAIAPIKey,
		"OPENAI_BASE_URL":   &c.OpenAIBaseURL,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PG_PORT":           &c.Postgres.Port,
		"QDRANT_PORT":       &c.Qdrant.Port,
		"EMBED_DIM":         &c.EmbedDim,
		"CHUNK_SIZE":        &c.ChunkSize,
		"CHUNK_OVERLAP":     &c.ChunkOverlap,
		"RETRIEVE_K":        &c.RetrieveK,
		"SNIPPET_CHARS":     &c.SnippetChars,
		"MAX_PROMPT_TOKENS": &c.MaxPromptTokens,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := lookup("EMBED_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("env EMBED_RPS: %w", err)
		}
		c.EmbedRPS = f
	}

	if v, ok := lookup("GENERATION_TIMEOUT"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("env GENERATION_TIMEOUT: %w", err)
		}
		c.GenerationTimeout = d
	}
	return nil
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
