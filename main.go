package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/cardle/internal/account"
	"github.com/robalobadob/cardle/internal/ads"
	"github.com/robalobadob/cardle/internal/coins"
	"github.com/robalobadob/cardle/internal/config"
	"github.com/robalobadob/cardle/internal/daily"
	"github.com/robalobadob/cardle/internal/db"
	"github.com/robalobadob/cardle/internal/httpserver"
	"github.com/robalobadob/cardle/internal/leaderboard"
	"github.com/robalobadob/cardle/internal/play"
	"github.com/robalobadob/cardle/internal/scryfall"
	"github.com/robalobadob/cardle/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_DIR"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg)

	if err := serve(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// serve wires the server and blocks until it stops. Everything it opens is
// closed before it returns.
func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlDB.Close()
	if err := db.Migrate(ctx, sqlDB); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	sessions, err := openSessions(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessions.Close()

	pool, err := daily.LoadPool(cfg.Daily.PoolFile, cfg.Daily.Salt)
	if err != nil {
		return fmt.Errorf("load daily pool: %w", err)
	}

	cards := scryfall.New(cfg.Scryfall, nil)
	ledger := coins.NewLedger(sqlDB)
	board := leaderboard.New(sqlDB)
	game := play.New(play.Deps{
		Cards:    cards,
		Sessions: sessions,
		Dailies:  daily.NewStore(sqlDB),
		Pool:     pool,
		Matches:  board,
		Wallet:   ledger,
	}, cfg.Game)
	tracker := ads.NewTracker(cfg.Ads, ads.CreditFunc(func(ctx context.Context, userID string, amount int64, reason string) error {
		_, err := ledger.Credit(ctx, userID, amount, reason)
		return err
	}))

	srv := httpserver.New(cfg, httpserver.Deps{
		Accounts: account.NewStore(sqlDB),
		Game:     game,
		Cards:    cards,
		Ledger:   ledger,
		Board:    board,
		Ads:      tracker,
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr()).Str("env", cfg.Server.Env).
			Int("dailyPool", pool.Len()).Msg("starting cardle server")
		serveErr <- srv.Start(cfg.Server.Addr())
	}()

	return waitAndShutdown(ctx, srv, serveErr)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// waitAndShutdown waits for a signal or a failed listener, then shuts srv
// down.
func waitAndShutdown(ctx context.Context, srv shutdowner, serveErr <-chan error) error {
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogging(cfg *config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if !cfg.Server.Production() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// openSessions builds the configured session backend. The memory backend
// is swept periodically until ctx ends.
func openSessions(ctx context.Context, cfg config.SessionConfig) (store.Store, error) {
	if cfg.Backend == "redis" {
		return store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			TTL:      cfg.TTL,
		})
	}

	st := store.NewMemoryStore(cfg.TTL)
	if sw, ok := st.(interface{ Sweep() int }); ok {
		go func() {
			t := time.NewTicker(cfg.SweepInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if n := sw.Sweep(); n > 0 {
						log.Debug().Int("expired", n).Msg("swept game sessions")
					}
				}
			}
		}()
	}
	return st, nil
}
