package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/chat"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/config"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/database"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/gemini"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/server"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voicenotes-api",
		Short: "Voice notes backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "PostgreSQL connection string")
	cmd.PersistentFlags().String("audio-dir", defaults.GetString("storage.audio_dir"), "Directory for uploaded audio")
	cmd.PersistentFlags().Int("max-upload-mb", defaults.GetInt("audio.max_upload_mb"), "Maximum audio upload size in megabytes")
	cmd.PersistentFlags().String("gemini-model", defaults.GetString("gemini.model"), "Gemini model name")
	cmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key (overrides env)")
	cmd.PersistentFlags().StringSlice("cors-allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "Allowed CORS origins")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "storage.audio_dir", "audio-dir")
	bindFlag(cmd, "audio.max_upload_mb", "max-upload-mb")
	bindFlag(cmd, "gemini.model", "gemini-model")
	bindFlag(cmd, "gemini.api_key", "gemini-api-key")
	bindFlag(cmd, "cors.allowed_origins", "cors-allowed-origins")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	blobs, err := storage.NewDirectoryBlobStore(appConfig.AudioDir)
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: notes.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	audioService, err := audio.NewService(audio.ServiceConfig{
		Database:   db,
		Notes:      notesService,
		Blobs:      blobs,
		Clock:      time.Now,
		IDProvider: notes.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	geminiClient, err := gemini.NewClient(ctx, gemini.ClientConfig{
		APIKey:  appConfig.GeminiAPIKey,
		Model:   appConfig.GeminiModel,
		BaseURL: appConfig.GeminiBaseURL,
		Timeout: appConfig.GeminiTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	transcriber, err := gemini.NewTranscriber(geminiClient, blobs)
	if err != nil {
		return err
	}
	summarizer, err := gemini.NewSummarizer(geminiClient)
	if err != nil {
		return err
	}

	realtime := server.NewRealtimeDispatcher()
	processor, err := audio.NewProcessor(audio.ProcessorConfig{
		Jobs:        audioService,
		Notes:       notesService,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Listener:    realtime,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	chatEngine, err := chat.NewEngine(notesService, logger)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		NotesService:   notesService,
		AudioService:   audioService,
		Processor:      processor,
		ChatEngine:     chatEngine,
		Realtime:       realtime,
		Logger:         logger,
		MaxUploadBytes: appConfig.MaxUploadBytes,
		AllowedOrigins: appConfig.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("gemini_model", geminiClient.Model()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
