package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/slotbook/internal/auth"
	"github.com/example/slotbook/internal/bookings"
	"github.com/example/slotbook/internal/config"
	"github.com/example/slotbook/internal/credentials"
	"github.com/example/slotbook/internal/crypto"
	"github.com/example/slotbook/internal/db"
	"github.com/example/slotbook/internal/google"
	"github.com/example/slotbook/internal/migrate"
	"github.com/example/slotbook/internal/postgres"
	"github.com/example/slotbook/internal/web"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			log := newLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}

			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			aead, err := crypto.New(cfg.CredEncKey)
			if err != nil {
				return fmt.Errorf("credential key: %w", err)
			}

			authStore := auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey)
			credsSvc := &credentials.Service{Repo: credentials.NewRepo(d), AEAD: aead}
			gateway := google.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.GatewayTimeout)

			engine := &bookings.Service{
				Store:               postgres.NewBookingRepo(d),
				Creds:               credsSvc,
				Gateway:             gateway,
				Log:                 log,
				StrictExternalCheck: cfg.StrictExternalCheck,
			}

			ws := &web.Server{
				Auth:        authStore,
				Bookings:    engine,
				Creds:       credsSvc,
				Google:      gateway,
				Log:         log,
				FrontendURL: cfg.FrontendURL,
			}

			log.WithField("addr", cfg.ListenAddr).Info("listening")
			return web.Start(ctx, cfg.ListenAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
