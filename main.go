package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/autotls"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"photoman/auth"
	"photoman/backend"
	"photoman/config"
	"photoman/db"
	"photoman/guard"
	"photoman/handlers"
	"photoman/logger"
	"photoman/models"
	"photoman/storage"
	"photoman/templates"
	"photoman/utils"
	"photoman/web"
	"photoman/workingset"
)

const (
	sessionCookieName = "token"
	minFreeSpace      = 512 << 20
	janitorInterval   = time.Minute
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Init(logger.Options{})
		log := logger.Get()
		log.Fatal().Err(err).Msg("config")
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log := logger.Get()

	if err = db.Init(cfg.MySQLDSN, cfg.SQLiteFile); err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	if err = models.Init(); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}
	store, err := storage.New(bucketFromConfig(cfg.Storage))
	if err != nil {
		log.Fatal().Err(err).Msg("storage")
	}
	client, err := backend.New(cfg.BackendURL, cfg.BackendTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("backend")
	}

	health := &handlers.Health{
		DBPing:       db.Ping,
		Storage:      store,
		Backend:      client,
		MinFreeSpace: minFreeSpace,
	}
	var submitGuard guard.Guard = guard.NewMemory()
	if cfg.Redis.Addr != "" {
		var rdb *redis.Client
		if rdb, err = guard.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis")
		}
		submitGuard = guard.NewRedis(rdb)
		health.Redis = rdb
	}

	hub := handlers.NewVideoHub(client, cfg.VideoPollInterval)
	screens := &web.Handlers{
		Backend:       client,
		Store:         workingset.NewStore(cfg.MaxPhotos),
		Storage:       store,
		Guard:         submitGuard,
		Submissions:   models.SubmissionLog{},
		Notifier:      hub,
		SubmitTimeout: cfg.SubmitTimeout,
	}
	go screens.StartJanitor(ctx, janitorInterval, cfg.WorkspaceIdle)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger)
	_ = router.SetTrustedProxies([]string{})
	if cfg.DebugMode {
		router.Use(utils.ErrorLogMiddleware)
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           30 * 24 * time.Hour,
	}))

	// HTML templates
	tmpl, err := templates.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("templates")
	}
	router.SetHTMLTemplate(tmpl)

	cookieStore := gormsessions.NewStore(db.Instance, true, []byte(cfg.SessionKey))
	cookieStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(sessionCookieName, cookieStore))
	if !cfg.DebugMode {
		router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/upload/videos/", "/ws/"})))
	}
	// No cache by default, photo and video handlers set their own
	router.Use((&utils.CacheRouter{
		CacheTime: utils.CacheNoCache,
		Prefixes:  map[string]int{"/robots.txt": 86400},
	}).Handler())

	screens.Register(router)
	authRouter := &auth.Router{Base: router}
	authRouter.GET("/ws/videos", hub.WebSocket, auth.RequireUser)
	// Health and metrics
	router.GET("/health", handlers.Liveness)
	router.GET("/health/ready", health.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().
		Str("backend", client.BaseURL()).
		Str("bind", cfg.BindAddress).
		Bool("redis", cfg.Redis.Addr != "").
		Msg("starting")
	if domains := cfg.TLSDomainList(); len(domains) > 0 {
		err = autotls.Run(router, domains...)
	} else {
		err = router.Run(cfg.BindAddress)
	}
	log.Fatal().Err(err).Msg("server stopped")
}

func bucketFromConfig(c config.StorageConfig) *storage.Bucket {
	b := &storage.Bucket{
		Name:          c.Bucket,
		StorageType:   storage.StorageTypeFile,
		Path:          c.Path,
		Region:        c.Region,
		Endpoint:      c.Endpoint,
		AuthDetails:   c.Auth,
		SSEEncryption: c.SSE,
	}
	if c.Type == config.StorageTypeS3 {
		b.StorageType = storage.StorageTypeS3
	}
	return b
}
