package main

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ipsstech/pairtalk/internal/auth"
	"github.com/ipsstech/pairtalk/internal/call"
	"github.com/ipsstech/pairtalk/internal/config"
	"github.com/ipsstech/pairtalk/internal/dispatch"
	"github.com/ipsstech/pairtalk/internal/handlers"
	"github.com/ipsstech/pairtalk/internal/history"
	"github.com/ipsstech/pairtalk/internal/middleware"
	"github.com/ipsstech/pairtalk/internal/store/sqlstore"
	"github.com/ipsstech/pairtalk/internal/ws"
)

var (
	configPath string
	addr       string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "pairtalkd",
	Short: "Realtime 1:1 messaging and voice-call signaling server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "pairtalkd.yaml", "path to config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func run() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	auth.SetSecret(cfg.Auth.TokenSecret)

	st, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}

	registry := ws.NewRegistry()
	calls := call.NewManager(registry)
	dispatcher := dispatch.New(st, registry)
	historySvc := history.New(st)
	hub := ws.NewHub(registry, calls, dispatcher)

	authHandler := &handlers.AuthHandler{Store: st}
	messageHandler := &handlers.MessageHandler{Dispatcher: dispatcher, History: historySvc}
	userHandler := &handlers.UserHandler{Store: st, History: historySvc}

	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware)
	api.HandleFunc("/messages", messageHandler.Create).Methods("POST")
	api.HandleFunc("/messages/{peer}", messageHandler.GetHistory).Methods("GET")
	api.HandleFunc("/users/search", userHandler.Search).Methods("GET")
	api.HandleFunc("/users/conversations", userHandler.Conversations).Methods("GET")
	api.HandleFunc("/users/{id}", userHandler.Lookup).Methods("GET")

	r.HandleFunc("/ws", hub.ServeWS)

	log.Info().Str("addr", cfg.Addr).Str("driver", cfg.Database.Driver).Msg("starting server")
	return http.ListenAndServe(cfg.Addr, r)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("request")
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
