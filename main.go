package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidtube/auth"
	"vidtube/comments"
	"vidtube/dashboard"
	"vidtube/db"
	"vidtube/httputil"
	"vidtube/likes"
	"vidtube/media"
	"vidtube/playlists"
	"vidtube/subscriptions"
	"vidtube/tweets"
	"vidtube/users"
	"vidtube/videos"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	_ "modernc.org/sqlite"
)

type Config struct {
	Port          string
	DBDriver      string
	DBPath        string
	DatabaseURL   string
	MinioEndpoint string
	MinioAccess   string
	MinioSecret   string
	MinioBucket   string
	MinioSSL      bool
	MediaBaseURL  string
	JWTSecret     string
}

func loadConfig() Config {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	return Config{
		Port:          getEnv("PORT", "8080"),
		DBDriver:      getEnv("DB_DRIVER", "sqlite"),
		DBPath:        getEnv("DB_PATH", "/data/vidtube.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MinioEndpoint: getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccess:   getEnv("MINIO_ACCESS_KEY", "vidtube"),
		MinioSecret:   getEnv("MINIO_SECRET_KEY", "changeme123"),
		MinioBucket:   getEnv("MINIO_BUCKET", "media"),
		MinioSSL:      getEnv("MINIO_USE_SSL", "false") == "true",
		MediaBaseURL:  getEnv("MEDIA_BASE_URL", "/storage"),
		JWTSecret:     getEnv("JWT_SECRET", "supersecretkey"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openDatabase(cfg Config) (*db.CompatDB, error) {
	if cfg.DBDriver == "postgres" {
		rawDB, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(rawDB, db.DialectPostgres); err != nil {
			return nil, err
		}
		return db.NewCompatDB(rawDB, db.DialectPostgres), nil
	}

	rawDB, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, err
	}
	// Single connection: prevents concurrent write conflicts
	rawDB.SetMaxOpenConns(1)
	rawDB.SetMaxIdleConns(1)
	rawDB.SetConnMaxLifetime(0)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := rawDB.Exec(pragma); err != nil {
			return nil, err
		}
	}
	if err := db.RunMigrations(rawDB, db.DialectSQLite); err != nil {
		return nil, err
	}
	return db.NewCompatDB(rawDB, db.DialectSQLite), nil
}

func main() {
	cfg := loadConfig()

	database, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccess, cfg.MinioSecret, ""),
		Secure: cfg.MinioSSL,
	})
	if err != nil {
		log.Fatalf("failed to connect to minio: %v", err)
	}

	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		log.Fatalf("failed to check bucket: %v", err)
	}
	if !exists {
		if err := minioClient.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			log.Fatalf("failed to create bucket: %v", err)
		}
		log.Printf("created bucket: %s", cfg.MinioBucket)
	}

	gateway := &media.Gateway{
		Client:  minioClient,
		Bucket:  cfg.MinioBucket,
		BaseURL: cfg.MediaBaseURL,
	}

	authHandler := &auth.Handler{DB: database, JWTSecret: cfg.JWTSecret}
	videoHandler := &videos.Handler{DB: database, Media: gateway}
	commentHandler := &comments.Handler{DB: database}
	likeHandler := &likes.Handler{DB: database}
	tweetHandler := &tweets.Handler{DB: database}
	playlistHandler := &playlists.Handler{DB: database}
	subscriptionHandler := &subscriptions.Handler{DB: database}
	dashboardHandler := &dashboard.Handler{DB: database}
	userHandler := &users.Handler{DB: database}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteData(w, 200, map[string]string{"status": "ok"}, "OK")
	})

	r.Post("/api/auth/register", authHandler.HandleRegister)
	r.Post("/api/auth/login", authHandler.HandleLogin)
	r.Post("/api/auth/refresh", authHandler.HandleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(authHandler.Middleware)

		r.Get("/api/videos", videoHandler.HandleList)
		r.Post("/api/videos/publish", videoHandler.HandlePublish)
		r.Get("/api/videos/{videoId}", videoHandler.HandleGet)
		r.Patch("/api/videos/{videoId}/update", videoHandler.HandleUpdate)
		r.Patch("/api/videos/{videoId}/toggle/publish", videoHandler.HandleTogglePublish)
		r.Delete("/api/videos/{videoId}/delete", videoHandler.HandleDelete)

		r.Get("/api/comments/{videoId}", commentHandler.HandleList)
		r.Post("/api/comments/{videoId}/add", commentHandler.HandleAdd)
		r.Patch("/api/comments/{commentId}/update", commentHandler.HandleUpdate)
		r.Delete("/api/comments/{commentId}/delete", commentHandler.HandleDelete)

		r.Post("/api/likes/toggle/v/{videoId}", likeHandler.HandleToggleVideo)
		r.Post("/api/likes/toggle/c/{commentId}", likeHandler.HandleToggleComment)
		r.Post("/api/likes/toggle/t/{tweetId}", likeHandler.HandleToggleTweet)
		r.Get("/api/likes/likedVideos", likeHandler.HandleLikedVideos)

		r.Post("/api/tweets/create", tweetHandler.HandleCreate)
		r.Get("/api/tweets/user/{userId}", tweetHandler.HandleListByUser)
		r.Patch("/api/tweets/{tweetId}/update", tweetHandler.HandleUpdate)
		r.Delete("/api/tweets/{tweetId}/delete", tweetHandler.HandleDelete)

		r.Post("/api/playlists/create", playlistHandler.HandleCreate)
		r.Get("/api/playlists/{playlistId}", playlistHandler.HandleGet)
		r.Patch("/api/playlists/update/{playlistId}", playlistHandler.HandleUpdate)
		r.Delete("/api/playlists/delete/{playlistId}", playlistHandler.HandleDelete)
		r.Patch("/api/playlists/add/{videoId}/{playlistId}", playlistHandler.HandleAddVideo)
		r.Patch("/api/playlists/remove/{videoId}/{playlistId}", playlistHandler.HandleRemoveVideo)
		r.Get("/api/playlists/user/{userId}", playlistHandler.HandleListByUser)

		r.Post("/api/subscriptions/channel/{channelId}", subscriptionHandler.HandleToggle)
		r.Get("/api/subscriptions/channel/{channelId}/subscribers", subscriptionHandler.HandleListSubscribers)
		r.Get("/api/subscriptions/user/{subscriberId}/channels", subscriptionHandler.HandleListSubscribed)

		r.Get("/api/dashboard/stats", dashboardHandler.HandleStats)
		r.Get("/api/dashboard/videos", dashboardHandler.HandleVideos)

		r.Get("/api/users/watchHistory", userHandler.HandleWatchHistory)
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Printf("vidtube API listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Println("server shut down")
}
