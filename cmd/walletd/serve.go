package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/AlexZinkM/custody-wallet/docs"
	"github.com/AlexZinkM/custody-wallet/internal/api"
	"github.com/AlexZinkM/custody-wallet/internal/client"
	"github.com/AlexZinkM/custody-wallet/internal/config"
	"github.com/AlexZinkM/custody-wallet/internal/crypto"
	"github.com/AlexZinkM/custody-wallet/internal/custody"
	"github.com/AlexZinkM/custody-wallet/internal/handler"
	"github.com/AlexZinkM/custody-wallet/internal/logger"
	"github.com/AlexZinkM/custody-wallet/internal/metrics"
	"github.com/AlexZinkM/custody-wallet/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// shutdownGrace is added on top of the receipt timeout when draining.
const shutdownGrace = 30 * time.Second

// shutdownTimeout lets a txSend that is already waiting for its receipt
// finish and record the transaction before the store is closed.
func shutdownTimeout(cfg *config.Config) time.Duration {
	return cfg.Receipt.Timeout + shutdownGrace
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	defer cfg.Wipe()
	if err := cfg.PromptForSecret(); err != nil {
		return err
	}

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer log.Sync()

	m := metrics.New()

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN, cfg.DBMaxOpen)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	eth, err := client.Dial(ctx, cfg.EthRPCURL)
	if err != nil {
		return err
	}
	defer eth.Close()

	deriver, err := crypto.NewDeriver(
		crypto.KDFParams{N: cfg.KDF.N, R: cfg.KDF.R, P: cfg.KDF.P},
		cfg.ScryptSecret,
		crypto.WithConcurrency(cfg.KDF.MaxConcurrent),
		crypto.WithRateLimit(cfg.KDF.RatePerSecond, cfg.KDF.Burst),
		crypto.WithObserver(m.ObserveKDF),
	)
	if err != nil {
		return err
	}
	logins, err := crypto.NewLoginCipher(cfg.LoginKey, cfg.LoginIV)
	if err != nil {
		return err
	}

	svc := custody.New(custody.Deps{
		Store:   st,
		Chain:   eth,
		Signer:  client.NewSigner(eth.Backend(), cfg.Receipt.PollInterval, cfg.Receipt.Timeout, log.Named("signer")),
		Deriver: deriver,
		Vault:   crypto.NewVault(cfg.Keystore.ScryptN, cfg.Keystore.ScryptP),
		Logins:  logins,
		Metrics: m,
		Logger:  log.Named("custody"),
	})
	router := api.SetupRouter(handler.NewRPCHandler(svc, m, log.Named("rpc")), m, st.Ping)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(log.Named("http")),
	}
	if cfg.TLSEnabled() {
		if srv.TLSConfig, err = tlsConfig(cfg); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.Bool("tls", cfg.TLSEnabled()))
		if cfg.TLSEnabled() {
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			log.Warn("TLS is disabled, serve behind a TLS-terminating proxy")
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := shutdownTimeout(cfg)
	log.Info("shutting down", zap.Duration("timeout", timeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// tlsConfig requires client certificates when a client CA is configured.
func tlsConfig(cfg *config.Config) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TLSClientCA == "" {
		return tc, nil
	}
	pem, err := os.ReadFile(cfg.TLSClientCA)
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("client CA file contains no certificates")
	}
	tc.ClientCAs = pool
	tc.ClientAuth = tls.RequireAndVerifyClientCert
	return tc, nil
}
