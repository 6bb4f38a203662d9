package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"boardsync/internal/model"
)

// Config holds application configuration
type Config struct {
	// MariaDB/MySQL ボードカタログ設定（DB_NAME 未設定なら無効）
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// サーバー設定
	ServerPort string
	Env        string
	SendBuffer int

	// CORS / WebSocket Origin 設定
	AllowedOrigins []string

	// ボックスのサイズ制限
	Limits model.Limits

	// カタログがない場合に起動時に作成するボード
	SeedBoards []model.BoardSummary
}

// Load loads configuration from environment variables
func Load() Config {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "3306"
	}

	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://127.0.0.1:3000"
	}

	seedBoards := os.Getenv("SEED_BOARDS")
	if seedBoards == "" {
		seedBoards = "default:Default Board"
	}

	defaults := model.DefaultLimits()
	cfg := Config{
		DBHost:         dbHost,
		DBPort:         dbPort,
		DBUser:         dbUser,
		DBPassword:     dbPassword,
		DBName:         dbName,
		ServerPort:     serverPort,
		Env:            env,
		SendBuffer:     intEnv("SEND_BUFFER", 256),
		AllowedOrigins: strings.Split(allowedOrigins, ","),
		Limits: model.Limits{
			MinWidth:      intEnv("BOX_MIN_WIDTH", defaults.MinWidth),
			MinHeight:     intEnv("BOX_MIN_HEIGHT", defaults.MinHeight),
			DefaultWidth:  intEnv("BOX_DEFAULT_WIDTH", defaults.DefaultWidth),
			DefaultHeight: intEnv("BOX_DEFAULT_HEIGHT", defaults.DefaultHeight),
		},
		SeedBoards: parseBoards(seedBoards),
	}

	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	return cfg
}

func intEnv(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		log.Printf("⚠️  Invalid %s=%q, using %d", key, raw, def)
		return def
	}
	return v
}

// parseBoards reads "id:name,id:name". A pair without a name uses the id.
func parseBoards(raw string) []model.BoardSummary {
	var boards []model.BoardSummary
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, name, found := strings.Cut(pair, ":")
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id == "" {
			continue
		}
		if !found || name == "" {
			name = id
		}
		boards = append(boards, model.BoardSummary{ID: id, Name: name})
	}
	return boards
}
