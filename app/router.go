// Package app contains the HTTP server and all endpoints available
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bitwise74/eats-api/app/root"
	"bitwise74/eats-api/app/user"
	"bitwise74/eats-api/db"
	"bitwise74/eats-api/internal"
	"bitwise74/eats-api/internal/service"
	"bitwise74/eats-api/pkg/middleware"
	"bitwise74/eats-api/pkg/security"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options are the HTTP settings that don't live in Deps.
type Options struct {
	JWTHeader string
	BodyLimit int64
	CacheTTL  time.Duration
	Origins   []string
}

type API struct {
	Router *gin.Engine
	Deps   *internal.Deps

	server *http.Server

	// worker is only set when mails go through the queue
	worker    *asynq.Server
	workerMux *asynq.ServeMux
	closers   []func() error
}

// NewRouter builds everything from the loaded config.
func NewRouter() (*API, error) {
	if err := makeLogger(viper.GetString("app.log_level")); err != nil {
		return nil, fmt.Errorf("failed to build logger, %w", err)
	}

	a := &API{}

	database, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	argon := security.New()
	argon.Memory = viper.GetUint32("argon.memory")
	argon.Iterations = viper.GetUint32("argon.iterations")
	argon.Parallelism = uint8(viper.GetUint("argon.parallelism"))

	tokens := security.NewTokenService([]byte(viper.GetString("jwt.secret")), viper.GetDuration("jwt.ttl"))

	a.Deps = internal.NewDeps(database, argon, tokens, a.notifier(), a.cacheStore())
	a.Router = New(a.Deps, Options{
		JWTHeader: viper.GetString("jwt.header"),
		BodyLimit: viper.GetInt64("http.body_limit"),
		CacheTTL:  viper.GetDuration("cache.ttl"),
		Origins:   origins(viper.GetStringSlice("host.cors")),
	})
	a.server = newServer(fmt.Sprintf(":%d", viper.GetInt("host.port")), a.Router)

	return a, nil
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// New registers all routes on a fresh engine.
func New(d *internal.Deps, o Options) *gin.Engine {
	router := gin.New()

	corsCfg := cors.Config{
		AllowOrigins:     o.Origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", o.JWTHeader},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(o.Origins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}

	router.Use(
		cors.New(corsCfg),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
		ginzap.RecoveryWithZap(zap.L(), true),
		middleware.NewIdentityMiddleware(d.Tokens, d.Users, o.JWTHeader),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	auth := middleware.RequireUser()

	main := router.Group("/api")
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		main.HEAD("/heartbeat", root.Heartbeat)
	}

	users := main.Group("/users", middleware.BodySizeLimiter(o.BodyLimit))
	{
		// POST /api/users 		-> Registers a new user
		users.POST("", func(c *gin.Context) { user.UserRegister(c, d) })

		// POST /api/users/login 	-> Logs in a user and returns a JWT token
		users.POST("/login", func(c *gin.Context) { user.UserLogin(c, d) })

		// POST /api/users/verify	-> Confirms a user's email with a verification code
		users.POST("/verify", func(c *gin.Context) { user.UserVerify(c, d) })

		// GET /api/users/me		-> Returns the logged in user
		users.GET("/me", auth, user.UserMe)

		// PATCH /api/users/me		-> Changes the logged in user's email or password
		users.PATCH("/me", auth, func(c *gin.Context) { user.UserEdit(c, d) })

		// GET /api/users/:id		-> Returns the public profile of a user
		users.GET("/:id", cacheFor(d.Cache, o.CacheTTL), func(c *gin.Context) { user.UserFetch(c, d) })
	}

	return router
}

// Addr is the address Run listens on.
func (a *API) Addr() string {
	return a.server.Addr
}

// Run starts the mail worker, if any, and serves HTTP until Shutdown is
// called. It then returns http.ErrServerClosed.
func (a *API) Run() error {
	if a.worker != nil {
		if err := a.worker.Start(a.workerMux); err != nil {
			return fmt.Errorf("failed to start mail worker, %w", err)
		}
	}

	return a.server.ListenAndServe()
}

// Shutdown stops taking requests, waits for the ones in flight and then for
// verification mails that are still being sent. Call Close afterwards.
func (a *API) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server, %w", err))
	}

	if err := a.Deps.Verifications.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to wait for verification mails, %w", err))
	}

	return errors.Join(errs...)
}

// Close stops the mail worker and releases connections.
func (a *API) Close() {
	if a.worker != nil {
		a.worker.Shutdown()
	}

	for _, c := range a.closers {
		if err := c(); err != nil {
			zap.L().Warn("Failed to close resource", zap.Error(err))
		}
	}

	if a.Deps != nil {
		if sqlDB, err := a.Deps.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// notifier picks how verification codes leave the service.
func (a *API) notifier() service.Notifier {
	if !viper.GetBool("mail.enabled") {
		zap.L().Warn("Mail is disabled, verification codes are only logged")
		return service.LogNotifier{}
	}

	mailer := service.NewMailer(service.MailerOpts{
		Host:     viper.GetString("mail.host"),
		Port:     viper.GetInt("mail.port"),
		Username: viper.GetString("mail.username"),
		Password: viper.GetString("mail.password"),
		From:     viper.GetString("mail.from"),
		Domain:   viper.GetString("host.domain"),
		SSL:      viper.GetBool("host.ssl_enabled"),
	})

	if viper.GetString("mail.delivery") != "queue" {
		return mailer
	}

	opt := asynq.RedisClientOpt{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
	}

	client := asynq.NewClient(opt)
	a.closers = append(a.closers, client.Close)

	a.worker = service.NewMailWorker(opt, 10)
	a.workerMux = service.NewMailMux(mailer)

	return service.NewQueueNotifier(client)
}

func (a *API) cacheStore() persist.CacheStore {
	if viper.GetString("cache.type") == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
		})
		a.closers = append(a.closers, client.Close)

		return persist.NewRedisStore(client)
	}

	return persist.NewMemoryStore(time.Minute)
}

func cacheFor(store persist.CacheStore, ttl time.Duration) gin.HandlerFunc {
	return cache.CacheByRequestURI(store, ttl)
}

// origins accepts both a list and a single comma separated string, which is
// what an env var gives us.
func origins(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, o := range strings.Split(r, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}

	return out
}
