// main.go
//
// Entrypoint for the crackcode server.
//
//	crackcode                  → same as "serve"
//	crackcode serve            → load config, wire dependencies, serve HTTP
//	crackcode hash-password PW → print a bcrypt hash for ADMIN_PASSWORD_HASH

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/crackcode/internal/config"
	"github.com/robalobadob/crackcode/internal/httpserver"
	"github.com/robalobadob/crackcode/internal/results"
	"github.com/robalobadob/crackcode/internal/session"
	"github.com/robalobadob/crackcode/internal/store"
	"github.com/robalobadob/crackcode/internal/vault"
)

const sweepInterval = time.Minute

var rootCmd = &cobra.Command{
	Use:           "crackcode",
	Short:         "Timed code-breaking game server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var hashCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash suitable for ADMIN_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(h))
		return nil
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, hashCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("crackcode exited")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		var ce *config.ConfigError
		if errors.As(err, &ce) {
			log.Error().Str("key", ce.Key).Msg(ce.Msg)
		}
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- secret code ---
	var v *vault.Vault
	if cfg.SecretCode != "" {
		v, err = vault.New(cfg.SecretCode, cfg.CodeLength, cfg.Alphabet)
	} else {
		v, err = vault.Generate(cfg.CodeLength, cfg.Alphabet)
		log.Warn().Msg("no SECRET_CODE set; generated a random code")
	}
	if err != nil {
		return fmt.Errorf("secret code: %w", err)
	}

	// --- session tokens ---
	var codec session.Codec
	switch cfg.SessionStore {
	case "memory":
		tc := session.NewTableCodec(store.NewTable[session.State](), cfg.TokenTTL)
		go store.RunSweeper(ctx, tc, sweepInterval)
		codec = tc
	default:
		if codec, err = session.NewJWTCodec(cfg.SigningKey, cfg.TokenTTL); err != nil {
			return err
		}
	}

	// --- replay guard ---
	var guard store.Guard
	if cfg.RedisURL != "" {
		rdb, err := store.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		guard = store.NewRedisGuard(rdb, "")
		log.Info().Msg("replay guard: redis")
	} else {
		mg := store.NewMemoryGuard()
		go store.RunSweeper(ctx, mg, sweepInterval)
		guard = mg
	}

	// --- results ledger ---
	deps := httpserver.Deps{
		AttemptBudget:  cfg.AttemptBudget,
		Codes:          v,
		ClientOrigin:   cfg.ClientOrigin,
		CookieName:     cfg.CookieName,
		Production:     cfg.Production,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}
	if cfg.AdminPasswordHash != "" {
		deps.AdminHash = []byte(cfg.AdminPasswordHash)
	}
	if cfg.DBPath != "" {
		db, err := results.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open results db: %w", err)
		}
		rs := results.NewStore(db)
		defer rs.Close()
		deps.Results = rs
	}

	deps.Policy = session.NewPolicy(v, codec, guard, session.Options{
		AttemptBudget: cfg.AttemptBudget,
		TimeBudget:    cfg.TimeBudget,
		ReplayTTL:     cfg.TokenTTL,
		AllowSpaces:   cfg.AllowSpaces,
	})

	srv := httpserver.New(deps)
	go store.RunSweeper(ctx, srv.Limiter(), sweepInterval)

	log.Info().
		Str("port", cfg.Port).
		Str("sessions", cfg.SessionStore).
		Int("attempts", cfg.AttemptBudget).
		Dur("time_budget", cfg.TimeBudget).
		Bool("results", deps.Results != nil).
		Bool("admin", len(deps.AdminHash) > 0).
		Msg("starting crackcode")
	return srv.Start(ctx, ":"+cfg.Port)
}

func setupLogging(cfg *config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
