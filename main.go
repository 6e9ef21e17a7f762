package main

import (
	"collabnotes/bus"
	"collabnotes/collab"
	"collabnotes/geo"
	"collabnotes/handlers/api/notes"
	"collabnotes/handlers/api/rooms"
	"collabnotes/handlers/auth"
	"collabnotes/handlers/websocket"
	appMiddleware "collabnotes/middleware"
	"collabnotes/metrics"
	"collabnotes/stores"
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const defaultRateLimit = 100

type server struct {
	store    stores.Store
	tokens   *auth.Tokens
	hub      *collab.Hub
	locator  notes.Locator
	external *auth.ExternalLogin
	limiter  *appMiddleware.RateLimiter
}

func setupRouter(s server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Get("/health", notes.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", auth.HandleRegister(s.store, s.tokens))
			r.Post("/login", auth.HandleLogin(s.store, s.tokens))
		})

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AuthJWT(s.tokens))
			r.Route("/notes", func(r chi.Router) {
				r.Get("/", notes.HandleListNotes(s.store))
				r.Post("/", notes.HandleCreateNote(s.store, s.locator))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", notes.HandleGetNote(s.store))
					r.Put("/", notes.HandleUpdateNote(s.store))
					r.Delete("/", notes.HandleDeleteNote(s.store))
				})
			})
			r.Get("/rooms", rooms.HandleListRooms(s.hub))
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.external.HandleLogin)
		r.Get("/callback", s.external.HandleCallback)
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}

func rateLimitFromEnv() int {
	raw := os.Getenv("RATE_LIMIT_PER_15M")
	if raw == "" {
		return defaultRateLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logrus.Warnf("Invalid RATE_LIMIT_PER_15M %q, using %d", raw, defaultRateLimit)
		return defaultRateLimit
	}
	return n
}

func setupBus(ctx context.Context) bus.Bus {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logrus.Info("REDIS_URL not set, edits stay on this instance")
		return bus.NewLocal()
	}
	b, err := bus.NewRedis(ctx, redisURL)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to redis")
	}
	logrus.Info("Fanning out edits through redis")
	return b
}

func waitForShutdown(ioo *socketio.Server, cancel context.CancelFunc, b bus.Bus) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	<-signals

	logrus.Info("Shutting down...")
	ioo.Close(nil)
	cancel()
	if err := b.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close bus")
	}
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":5000", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ctx, cancel := context.WithCancel(context.Background())

	store := stores.GetStore()
	tokens := auth.TokensFromEnv()
	b := setupBus(ctx)

	hub := collab.NewHub(collab.NewRegistry(), store, tokens, b)
	if err := hub.Start(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to subscribe to edit bus")
	}

	r := setupRouter(server{
		store:    store,
		tokens:   tokens,
		hub:      hub,
		locator:  geo.NewClient(os.Getenv("GEO_LOOKUP_URL")),
		external: auth.NewExternalLogin(store, tokens),
		limiter:  appMiddleware.NewRateLimiter(rateLimitFromEnv(), 15*time.Minute),
	})

	ioo := websocket.SetupSocketIO(ctx, hub)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ioo, cancel, b)
}
