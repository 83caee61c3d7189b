package app

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

// Config stores runtime configuration loaded from .env and the environment.
type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	StoreDriver    string
	MongoURI       string
	MongoDatabase  string
	DBDSN          string
	DBMaxOpenConns int

	AllowedOrigins     []string
	RequestBodyLimitMB int

	CloudinaryURL    string
	CloudinaryFolder string

	AdminTokenHash         string
	ViewRateLimitPerMinute int
}

func LoadConfig() Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Debug().Err(err).Msg("no .env file, using environment only")
	}
	return configFrom(v)
}

func configFrom(v *viper.Viper) Config {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":5000")
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "portal")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("REQUEST_BODY_LIMIT_MB", 6)
	v.SetDefault("CLOUDINARY_FOLDER", "programming-portal")
	v.SetDefault("VIEW_RATE_LIMIT_PER_MINUTE", 30)

	return Config{
		AppEnv:                 v.GetString("APP_ENV"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		HTTPAddr:               v.GetString("HTTP_ADDR"),
		StoreDriver:            strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		MongoURI:               v.GetString("MONGODB_URI"),
		MongoDatabase:          v.GetString("MONGODB_DATABASE"),
		DBDSN:                  v.GetString("DB_DSN"),
		DBMaxOpenConns:         positiveOr(v.GetInt("DB_MAX_OPEN_CONNS"), 25),
		AllowedOrigins:         mergeOrigins(defaultOrigins, v.GetString("ALLOWED_ORIGINS")),
		RequestBodyLimitMB:     positiveOr(v.GetInt("REQUEST_BODY_LIMIT_MB"), 6),
		CloudinaryURL:          strings.TrimSpace(v.GetString("CLOUDINARY_URL")),
		CloudinaryFolder:       v.GetString("CLOUDINARY_FOLDER"),
		AdminTokenHash:         strings.TrimSpace(v.GetString("ADMIN_TOKEN_HASH")),
		ViewRateLimitPerMinute: positiveOr(v.GetInt("VIEW_RATE_LIMIT_PER_MINUTE"), 30),
	}
}

func positiveOr(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

// mergeOrigins appends the comma separated extra origins to base, dropping
// blanks, trailing slashes and duplicates.
func mergeOrigins(base []string, extra string) []string {
	seen := make(map[string]struct{}, len(base))
	out := make([]string, 0, len(base))
	add := func(o string) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			return
		}
		if _, ok := seen[o]; ok {
			return
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	for _, o := range base {
		add(o)
	}
	for _, o := range strings.Split(extra, ",") {
		add(o)
	}
	return out
}
