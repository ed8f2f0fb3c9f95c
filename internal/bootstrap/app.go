package bootstrap

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/geekpunk/CareCompassConcept/internal/chat"
	"github.com/geekpunk/CareCompassConcept/internal/files"
	"github.com/geekpunk/CareCompassConcept/internal/llm"
	"github.com/geekpunk/CareCompassConcept/internal/llm/gemini"
	"github.com/geekpunk/CareCompassConcept/internal/patients"
	"github.com/geekpunk/CareCompassConcept/internal/shared/auth"
	"github.com/geekpunk/CareCompassConcept/internal/shared/config"
	"github.com/geekpunk/CareCompassConcept/internal/shared/crypto"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server"
	"github.com/geekpunk/CareCompassConcept/internal/shared/storage/mongodb"
	s3store "github.com/geekpunk/CareCompassConcept/internal/shared/storage/object/s3"
	"github.com/geekpunk/CareCompassConcept/internal/shared/telemetry"
)

// App holds the built application: its configuration, shared dependencies
// and the wired router.
type App struct {
	Config config.Config
	Router *gin.Engine

	Codec    *crypto.Codec
	Verifier auth.Verifier
	Mongo    *mongo.Client

	PatientsRepo    patients.Repo
	PatientsService *patients.Service
	FilesService    *files.Service
	LLM             llm.Client
}

// Build assembles every dependency from configuration. Missing external
// services degrade rather than fail: no document store means the in-memory
// repository, no credentials mean unverified tokens, no model key means the
// placeholder client.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	telemetry.SetDebug(cfg.Debug)

	app := &App{Config: cfg}

	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		telemetry.Warn("crypto.ephemeral_key", map[string]any{
			"reason": err.Error(),
			"detail": "generated a process-local key; records will be unreadable after restart",
		})
		codec, err = crypto.NewCodec(crypto.GenerateKey())
		if err != nil {
			return nil, err
		}
	}
	app.Codec = codec

	sa, err := auth.LoadServiceAccount(cfg.ServiceAccount, cfg.ServiceAccountPath)
	if err != nil {
		telemetry.Warn("auth.service_account_invalid", map[string]any{"err": err.Error()})
	}
	if sa != nil {
		app.Verifier = auth.NewCertVerifier(sa.ProjectID)
	} else {
		telemetry.Warn("auth.signature_verification_disabled", map[string]any{
			"detail": "no service account configured; token signatures are not checked",
		})
		app.Verifier = auth.InsecureVerifier{}
	}

	var db *mongo.Database
	if cfg.MongoURI != "" {
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			telemetry.Warn("mongo.connect_failed", map[string]any{"err": err.Error()})
		} else {
			app.Mongo = client
			db = client.Database(cfg.MongoDatabase)
			if err := mongodb.EnsureIndexes(ctx, db); err != nil {
				telemetry.Warn("mongo.ensure_indexes_failed", map[string]any{"err": err.Error()})
			}
		}
	}

	if db != nil {
		app.PatientsRepo = patients.NewMongoRepo(db)
	} else {
		telemetry.Warn("storage.memory_fallback", map[string]any{
			"detail": "no document store; records are kept in process memory",
		})
		app.PatientsRepo = patients.NewMemoryRepo()
	}
	app.PatientsService = &patients.Service{Repo: app.PatientsRepo, Codec: app.Codec}

	// File storage needs both the blob store and the document store; in the
	// memory fallback the file endpoints report 501.
	app.FilesService = &files.Service{Codec: app.Codec, Patients: app.PatientsService}
	if db != nil && cfg.S3Bucket != "" {
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			telemetry.Warn("s3.init_failed", map[string]any{"err": err.Error()})
		} else {
			app.FilesService.Repo = files.NewMongoRepo(db)
			app.FilesService.Store = store
		}
	}

	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		app.LLM = client
	} else {
		telemetry.Warn("llm.not_configured", map[string]any{
			"detail": "GEMINI_API_KEY is unset; chat requests will fail",
		})
		app.LLM = llm.PlaceholderClient{}
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Verifier: app.Verifier,
		Patients: patients.NewHandler(app.PatientsService),
		Files:    files.NewHandler(app.FilesService),
		Chat:     chat.NewHandler(app.LLM, app.FilesService),
	})
	return app, nil
}

// Close releases held connections.
func (a *App) Close(ctx context.Context) {
	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(ctx); err != nil {
			telemetry.Warn("mongo.disconnect_failed", map[string]any{"err": err.Error()})
		}
	}
}
