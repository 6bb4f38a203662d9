package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"boardsync/internal/config"
	"boardsync/internal/database"
	"boardsync/internal/handler"
	"boardsync/internal/hub"
	"boardsync/internal/model"
	"boardsync/internal/store"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  .env file not found, using default values: %v", err)
	}

	// 環境変数を読み込み
	cfg := config.Load()

	s := store.New(cfg.Limits)
	boards := cfg.SeedBoards

	// DB_NAME があればボードカタログを使う
	var catalog handler.Catalog
	if cfg.DBName != "" {
		db, err := database.Init(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to initialize database: %v", err)
		}
		defer db.Close()

		c := database.NewCatalog(db)
		boards, err = loadCatalog(context.Background(), c, cfg.SeedBoards)
		if err != nil {
			log.Fatalf("❌ Failed to load board catalog: %v", err)
		}
		catalog = c
	}

	for _, b := range boards {
		if _, err := s.CreateBoard(b.ID, b.Name); err != nil {
			log.Printf("⚠️  Skipping board %s: %v", b.ID, err)
		}
	}

	h := handler.New(s, hub.New(s, hub.WithSendBuffer(cfg.SendBuffer)), catalog, cfg)
	router := h.SetupRouter()

	// CORS対応
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	httpHandler := c.Handler(router)

	fmt.Println("========================================")
	fmt.Println("  Boardsync Server")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Server: http://localhost:%s\n", cfg.ServerPort)
	fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", cfg.ServerPort)
	if cfg.DBName != "" {
		fmt.Printf("  Catalog: %s@%s:%s/%s\n", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	fmt.Printf("  Boards: %d\n", len(s.ListBoards()))
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")
	log.Println("🚀 Server started successfully")
	log.Fatal(http.ListenAndServe(":"+cfg.ServerPort, httpHandler))
}

// loadCatalog reads the catalogued boards, writing the seed boards into an
// empty catalog first.
func loadCatalog(ctx context.Context, c *database.Catalog, seed []model.BoardSummary) ([]model.BoardSummary, error) {
	if err := c.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	boards, err := c.LoadBoards(ctx)
	if err != nil {
		return nil, err
	}
	if len(boards) > 0 {
		return boards, nil
	}

	for _, b := range seed {
		if err := c.SaveBoard(ctx, b); err != nil {
			return nil, err
		}
	}
	return seed, nil
}
