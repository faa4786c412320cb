package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Server struct {
	Port            int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	LogLevel        string
}

type DB struct {
	DbHOST     string
	DbPORT     string
	DbUSER     string
	DbPASSWORD string
	DbNAME     string
	DbSSLMODE  string
}

// ConnString is the lib/pq keyword/value DSN, shared by the pool and the change listener.
func (d DB) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.DbHOST, d.DbPORT, d.DbUSER, d.DbPASSWORD, d.DbNAME, d.DbSSLMODE,
	)
}

type MinIO struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
	Region     string
	URLExpiry  time.Duration
}

type Redis struct {
	URL        string
	ProfileTTL time.Duration
}

type Kafka struct {
	Brokers     []string
	TopicPrefix string
}

type Feed struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Avatars are object keys used when a profile has no avatarRef of its own.
type Avatars struct {
	Male    string
	Female  string
	Neutral string
	BaseURL string
}

type Config struct {
	Server               Server
	DB                   DB
	MinIO                MinIO
	Redis                Redis
	Kafka                Kafka
	Feed                 Feed
	Avatars              Avatars
	JWTSecretKey         string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	// AdminUserIDs may call the /api/admin routes. Empty disables them.
	AdminUserIDs []string
}

// loader resolves a key from the process environment first, then from the
// optional YAML file, then falls back to the default.
type loader struct {
	file map[string]string
}

func (l loader) getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if value, exists := l.file[key]; exists {
		return value
	}
	return defaultValue
}

func (l loader) getEnvBool(key string, fallback bool) bool {
	if boolValue, err := strconv.ParseBool(l.getEnv(key, "")); err == nil {
		return boolValue
	}
	return fallback
}

func (l loader) getEnvAsInt(key string, defaultValue int) int {
	if intValue, err := strconv.Atoi(l.getEnv(key, "")); err == nil {
		return intValue
	}
	return defaultValue
}

func (l loader) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	duration, err := time.ParseDuration(l.getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return duration
}

func (l loader) getEnvCSV(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(l.getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (l loader) loadServer() Server {
	return Server{
		Port:            l.getEnvAsInt("SERVER_PORT", 8080),
		RequestTimeout:  l.getEnvDuration("SERVER_REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: l.getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:     l.getEnvCSV("SERVER_CORS_ORIGINS", []string{"*"}),
		LogLevel:        l.getEnv("LOG_LEVEL", "info"),
	}
}

func (l loader) loadDB() DB {
	return DB{
		DbHOST:     l.getEnv("DB_HOST", "localhost"),
		DbPORT:     l.getEnv("DB_PORT", "5432"),
		DbUSER:     l.getEnv("DB_USER", "postgres"),
		DbPASSWORD: l.getEnv("DB_PASSWORD", "password"),
		DbNAME:     l.getEnv("DB_NAME", "lorelink"),
		DbSSLMODE:  l.getEnv("DB_SSLMODE", "disable"),
	}
}

func (l loader) loadMinIO() MinIO {
	return MinIO{
		Endpoint:   l.getEnv("MINIO_ENDPOINT", ""),
		AccessKey:  l.getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey:  l.getEnv("MINIO_SECRET_KEY", "minioadmin"),
		BucketName: l.getEnv("MINIO_BUCKET_NAME", "avatars"),
		UseSSL:     l.getEnvBool("MINIO_USE_SSL", false),
		Region:     l.getEnv("MINIO_REGION", "us-east-1"),
		URLExpiry:  l.getEnvDuration("MINIO_URL_EXPIRY", 24*time.Hour),
	}
}

func (l loader) loadRedis() Redis {
	return Redis{
		URL:        l.getEnv("REDIS_URL", ""),
		ProfileTTL: l.getEnvDuration("REDIS_PROFILE_TTL", 5*time.Minute),
	}
}

func (l loader) loadKafka() Kafka {
	return Kafka{
		Brokers:     l.getEnvCSV("KAFKA_BROKERS", nil),
		TopicPrefix: l.getEnv("KAFKA_TOPIC_PREFIX", "lorelink."),
	}
}

func (l loader) loadFeed() Feed {
	feed := Feed{
		DefaultPageSize: l.getEnvAsInt("FEED_DEFAULT_PAGE_SIZE", 20),
		MaxPageSize:     l.getEnvAsInt("FEED_MAX_PAGE_SIZE", 100),
	}
	if feed.DefaultPageSize <= 0 {
		feed.DefaultPageSize = 20
	}
	if feed.MaxPageSize < feed.DefaultPageSize {
		feed.MaxPageSize = feed.DefaultPageSize
	}
	return feed
}

func (l loader) loadAvatars() Avatars {
	return Avatars{
		Male:    l.getEnv("AVATAR_DEFAULT_MALE", "defaults/male_default.png"),
		Female:  l.getEnv("AVATAR_DEFAULT_FEMALE", "defaults/female_default.png"),
		Neutral: l.getEnv("AVATAR_DEFAULT_NEUTRAL", "defaults/neutral_default.png"),
		BaseURL: l.getEnv("AVATAR_BASE_URL", ""),
	}
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	l := loader{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := readFile(path)
		if err != nil {
			slog.Warn("config file ignored", "path", path, "error", err)
		}
		l.file = values
	}

	return l.load()
}

func (l loader) load() *Config {
	return &Config{
		Server:               l.loadServer(),
		DB:                   l.loadDB(),
		MinIO:                l.loadMinIO(),
		Redis:                l.loadRedis(),
		Kafka:                l.loadKafka(),
		Feed:                 l.loadFeed(),
		Avatars:              l.loadAvatars(),
		JWTSecretKey:         l.getEnv("JWT_SECRET_KEY", ""),
		AccessTokenDuration:  l.getEnvDuration("ACCESS_TOKEN_DURATION", 2*time.Hour),
		RefreshTokenDuration: l.getEnvDuration("REFRESH_TOKEN_DURATION", 168*time.Hour),
		AdminUserIDs:         l.getEnvCSV("ADMIN_USER_IDS", nil),
	}
}

// readFile flattens a nested YAML document into env-style keys,
// so `db: {host: x}` becomes DB_HOST=x.
func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parseYAML(raw)
}

func parseYAML(raw []byte) (map[string]string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	out := make(map[string]string)
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for key, value := range node {
		name := strings.ToUpper(key)
		if prefix != "" {
			name = prefix + "_" + name
		}

		switch v := value.(type) {
		case map[string]any:
			flatten(name, v, out)
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			out[name] = strings.Join(parts, ",")
		case nil:
		default:
			out[name] = fmt.Sprint(v)
		}
	}
}
