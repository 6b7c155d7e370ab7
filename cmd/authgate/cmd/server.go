package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/api"
	"github.com/authgate/authgate/auth"
	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/directory"
	"github.com/authgate/authgate/pki"
	"github.com/authgate/authgate/store"
	bboltstore "github.com/authgate/authgate/store/bbolt"
	memorystore "github.com/authgate/authgate/store/memory"
	postgresstore "github.com/authgate/authgate/store/postgres"
	redisstore "github.com/authgate/authgate/store/redis"
)

var configPath string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the authentication gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		users, closeStore, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer closeStore()

		dirCfg, err := cfg.DirectoryConfig()
		if err != nil {
			return err
		}
		resolver, err := directory.NewResolver(dirCfg, directory.WithLogger(logger))
		if err != nil {
			return err
		}

		apiOpts := []api.Option{
			api.WithLogger(logger),
			api.WithLoginRateLimit(cfg.Server.LoginRateLimit, cfg.Server.LoginRateWindow),
		}

		var tlsConfig *tls.Config
		if cfg.Server.TLSCert != "" {
			cert, err := tls.LoadX509KeyPair(cfg.Server.TLSCert, cfg.Server.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		} else {
			cert, caPEM, err := generateServerCertificate()
			if err != nil {
				return fmt.Errorf("failed to generate certificate chain: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
			apiOpts = append(apiOpts, api.WithCACertificate(caPEM))
			fmt.Println("Using runtime generated certificate chain for TLS; CA published at /api/v1/ca.pem")
		}

		a := api.New(resolver, auth.NewSynchronizer(users, logger), apiOpts...)

		r := chi.NewRouter()
		r.Use(chimiddleware.Logger)
		r.Use(chimiddleware.Recoverer)
		r.Get("/health", api.Health)
		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on %s (store: %s)...\n", cfg.Server.Addr, cfg.Store.Backend)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// openStore builds the configured user store backend. The returned
// func releases the backend's resources.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.UserStore, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memorystore.NewStore(), func() {}, nil
	case config.BackendBbolt:
		s, err := bboltstore.NewStoreFromFile(cfg.Path, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open user store: %w", err)
		}
		return s, func() { s.Close() }, nil
	case config.BackendPostgres:
		s, err := postgresstore.NewStoreFromDSN(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open user store: %w", err)
		}
		return s, s.Close, nil
	case config.BackendRedis:
		s, err := redisstore.NewStoreFromAddr(ctx, cfg.Addr, cfg.Password, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open user store: %w", err)
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// generateServerCertificate builds an in-memory CA and a CA-signed leaf
// for localhost use. Nothing touches disk; the CA PEM is returned so
// the API can publish the trust anchor.
func generateServerCertificate() (tls.Certificate, []byte, error) {
	ca := pki.NewCertificateAuthority(pki.Subject{
		CommonName:   "authgate Runtime CA",
		Organization: "authgate",
		OrgUnit:      "Runtime",
	})
	if err := ca.Generate(); err != nil {
		return tls.Certificate{}, nil, err
	}

	leaf := pki.NewServerCertificate(pki.Subject{
		CommonName:   "localhost",
		Organization: "authgate",
		OrgUnit:      "Runtime",
	})
	if err := leaf.GenerateCSR(); err != nil {
		return tls.Certificate{}, nil, err
	}
	if err := leaf.SignWithCA(ca); err != nil {
		return tls.Certificate{}, nil, err
	}
	cert, err := leaf.TLSCertificate()
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	return cert, ca.CertificatePEM(), nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
}
