package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/fedinode/fedinode/ap"
	"github.com/fedinode/fedinode/apclient"
	"github.com/fedinode/fedinode/api"
	"github.com/fedinode/fedinode/delivery"
	apmiddleware "github.com/fedinode/fedinode/middleware"
	"github.com/fedinode/fedinode/signature"
	"github.com/fedinode/fedinode/store"
	"github.com/fedinode/fedinode/types"
	"github.com/fedinode/fedinode/worker"
)

var (
	version      = "unknown"
	buildMachine = "unknown"
	buildTime    = "unknown"
	goVersion    = "unknown"
)

func main() {
	e := echo.New()

	config, err := LoadConfig()
	if err != nil {
		slog.Error("Failed to load config: ", slog.String("error", err.Error()))
		panic(err)
	}
	nodeConfig := config.NodeConfig(version)

	slog.Info(fmt.Sprintf("Fedinode %s starting...", version))
	slog.Info(fmt.Sprintf("Serving %s as %s", nodeConfig.Host(), nodeConfig.ActorID(nodeConfig.ActorName)))

	e.HidePort = true
	e.HideBanner = true

	if config.EnableTrace {
		cleanup, err := setupTraceProvider(config.TraceEndpoint, nodeConfig.Host()+"/fedinode", version)
		if err != nil {
			panic(err)
		}
		defer cleanup()

		skipper := otelecho.WithSkipper(
			func(c echo.Context) bool {
				return c.Path() == "/metrics" || c.Path() == "/health"
			},
		)
		e.Use(otelecho.Middleware(nodeConfig.Host(), skipper))
	}

	e.Use(echoprometheus.NewMiddleware("fedinode"))
	e.Use(echomiddleware.Recover())

	e.Binder = &apmiddleware.Binder{}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             300 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(config.DSN), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		panic("failed to connect database")
	}
	sqlDB, err := db.DB() // for pinging
	if err != nil {
		panic("failed to connect database")
	}
	defer sqlDB.Close()

	err = db.Use(tracing.NewPlugin(
		tracing.WithDBName("postgres"),
	))
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	mc := memcache.New(config.MemcachedAddr)
	defer mc.Close()

	log.Println("start migrate")
	db.AutoMigrate(
		&types.Actor{},
		&types.Activity{},
		&types.Note{},
		&types.FollowRelation{},
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: "",
		DB:       config.RedisDB,
	})
	err = redisotel.InstrumentTracing(
		rdb,
		redisotel.WithAttributes(
			attribute.KeyValue{
				Key:   "db.name",
				Value: attribute.StringValue("redis"),
			},
		),
	)
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	storeService := store.NewStore(db)

	if err := ensureLocalActor(context.Background(), storeService, nodeConfig); err != nil {
		slog.Error("Failed to bootstrap local actor: ", slog.String("error", err.Error()))
		panic(err)
	}

	signer := signature.NewSigner(storeService, nodeConfig)
	apClient := apclient.NewApClient(mc, signer, nodeConfig)
	verifier := signature.NewVerifier(apClient, nodeConfig)
	deliveryService := delivery.NewService(signer, nodeConfig)
	queue := delivery.NewQueue(rdb)

	apService := ap.NewService(storeService, apClient, deliveryService, queue, nodeConfig)
	apHandler := ap.NewHandler(apService, verifier)

	apiService := api.NewService(storeService, apClient, deliveryService, nodeConfig)
	apiHandler := api.NewHandler(apiService)

	deliveryWorker := worker.NewWorker(storeService, deliveryService, queue)
	go deliveryWorker.Run(context.Background())

	e.GET("/.well-known/host-meta", apHandler.HostMeta)
	e.GET("/.well-known/webfinger", apHandler.WebFinger)
	e.GET("/.well-known/nodeinfo", apHandler.NodeInfoWellKnown)
	e.GET("/nodeinfo/2.0", apHandler.NodeInfo)

	e.GET("/users/:username", apHandler.Actor)
	e.POST("/users/:username/inbox", apHandler.Inbox)
	e.GET("/users/:username/inbox", apHandler.InboxCollection)
	e.GET("/users/:username/outbox", apHandler.Outbox)
	e.POST("/users/:username/outbox", apHandler.PostOutbox)
	e.GET("/users/:username/followers", apHandler.Followers)
	e.GET("/users/:username/following", apHandler.Following)
	e.GET("/notes/:id", apHandler.Note)
	e.GET("/@:username", apHandler.ProfilePage)

	apiGroup := e.Group("/api")
	apiGroup.POST("/actors", apiHandler.CreateActor)
	apiGroup.GET("/actors/:username", apiHandler.GetActor)
	apiGroup.POST("/actors/:username/follow", apiHandler.Follow)
	apiGroup.DELETE("/actors/:username/follow", apiHandler.Unfollow)
	apiGroup.GET("/actors/:username/stats", apiHandler.GetStats)

	e.GET("/health", func(c echo.Context) (err error) {
		ctx := c.Request().Context()

		err = sqlDB.Ping()
		if err != nil {
			return c.String(http.StatusInternalServerError, "db error")
		}

		err = rdb.Ping(ctx).Err()
		if err != nil {
			return c.String(http.StatusInternalServerError, "redis error")
		}

		return c.String(http.StatusOK, "ok")
	})

	e.GET("/metrics", echoprometheus.NewHandler())

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", config.PortNumber())))
}
