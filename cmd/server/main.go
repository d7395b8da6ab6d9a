// ./astra-backend/cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"astra/backend/internal/audiobook"
	"astra/backend/internal/auth"
	"astra/backend/internal/config"
	"astra/backend/internal/database"
	"astra/backend/internal/extract"
	"astra/backend/internal/handlers"
	"astra/backend/internal/logging"
	"astra/backend/internal/middleware"
	"astra/backend/internal/services"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open datastore")
	}

	// Initialize Firebase Admin SDK from Environment Variable
	keyData, err := services.RectifyPrivateKey([]byte(cfg.KeyData))
	if err != nil {
		log.Fatal().Err(err).Msg("error parsing KEY_DATA")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON(keyData))
	if err != nil {
		log.Fatal().Err(err).Msg("error initializing firebase app")
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("error getting Auth client")
	}

	voices := audiobook.DefaultVoices
	if cfg.VoicesFile != "" {
		if voices, err = audiobook.LoadVoices(cfg.VoicesFile); err != nil {
			log.Fatal().Err(err).Msg("failed to load voices")
		}
	}
	added, err := audiobook.SeedVoices(ctx, store, voices)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed voices")
	}
	log.Info().Int("added", added).Int("catalog", len(voices)).Msg("voices seeded")

	engine := newEngine(cfg)
	locker, err := newLocker(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize output locks")
	}
	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize publisher")
	}

	for _, dir := range []string{cfg.UploadDir, cfg.AudiobookDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}

	poppler := extract.NewPoppler(cfg.PDFInfoBinary, cfg.PDFToTextBinary, cfg.ExtractTimeout, logging.Component("poppler"))
	runner := audiobook.NewRunner(int(cfg.AudiobookWorkers))
	books := audiobook.NewService(audiobook.Deps{
		Documents:  store,
		Voices:     store,
		Audiobooks: store,
		Pages:      poppler,
		Engine:     engine,
		Runner:     runner,
		Locker:     locker,
		Publisher:  publisher,
		Dir:        cfg.AudiobookDir,
		Logger:     logging.Component("audiobook"),
	})

	h := &handlers.Handler{
		Store:      store,
		Audiobooks: books,
		Pages:      poppler,
		OCR:        extract.NewTesseract(cfg.TesseractBinary, cfg.ExtractTimeout),
		RenderPDF:  extract.RenderTextPDF,
		UploadDir:  cfg.UploadDir,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.DBTimeout,
	}
	if cfg.OpenAIAPIKey != "" {
		h.Summarizer = services.NewOpenAISummarizer(cfg.OpenAIAPIKey, cfg.SummaryModel)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, summarization disabled")
	}
	session := &auth.SessionHandler{Users: store, Settings: store}

	// Initialize Gin Router
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logging.Component("http")), middleware.CORS(cfg.CORSOrigins))
	handlers.Register(router, h, session, authClient, handlers.RouteOptions{
		AudiobookDir:   cfg.AudiobookDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		GenerateEvery:  cfg.RateLimitEvery,
		GenerateBurst:  cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("audiobook jobs did not stop in time")
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("closing datastore")
	}
}

func openStore(ctx context.Context, cfg config.Config) (database.Store, error) {
	if cfg.DBDriver == "memory" {
		log.Warn().Msg("using in-memory datastore, data is lost on restart")
		return database.NewMemoryStore(), nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	store, err := database.ConnectDB(connectCtx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		return nil, err
	}
	log.Info().Str("db", cfg.DBName).Msg("Connected to MongoDB")
	return store, nil
}

func newEngine(cfg config.Config) audiobook.Engine {
	if cfg.TTSEngine == "openai" {
		return services.NewOpenAISynthesizer(cfg.OpenAIAPIKey, cfg.OpenAITTSSpeed, logging.Component("tts"))
	}
	return services.NewCoquiSynthesizer(cfg.CoquiBinary, logging.Component("tts"))
}

func newLocker(ctx context.Context, cfg config.Config) (audiobook.Locker, error) {
	if cfg.RedisURL == "" {
		return audiobook.NewLocalLocker(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Info().Str("addr", opts.Addr).Msg("using redis output locks")
	return audiobook.NewRedisLocker(client, cfg.LockTTL), nil
}

func newPublisher(ctx context.Context, cfg config.Config) (audiobook.Publisher, error) {
	switch cfg.PublishTarget {
	case "drive":
		p, err := services.NewDrivePublisher(ctx, cfg.DriveCredential, cfg.DriveFolderID, logging.Component("publish"))
		if err != nil {
			return nil, err
		}
		return p, nil
	case "mega":
		p, err := services.NewMegaPublisher(cfg.MegaEmail, cfg.MegaPassword, logging.Component("publish"))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, nil
}
