package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"
)

// Exit codes: 0 clean shutdown, 1 bind failure, 2 TLS material load
// failure, 3 configuration error.
const (
	exitOK              = 0
	exitBindFailure     = 1
	exitTLSLoadFailure  = 2
	exitConfigError     = 3
)

func main() {
	configPath := flag.String("config", "bridge.yaml", "path to the bridge YAML configuration file")
	bindAddrFlag := flag.String("bind-addr", "", "override bind_addr from the config file")
	caPathFlag := flag.String("ca-path", "", "override tls.ca_path from the config file")
	certPathFlag := flag.String("cert-path", "", "override tls.cert_path from the config file")
	keyPathFlag := flag.String("key-path", "", "override tls.key_path from the config file")
	adminAddrFlag := flag.String("admin-addr", "", "override admin.listen_addr from the config file")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(exitConfigError)
	}
	if *bindAddrFlag != "" {
		cfg.BindAddr = *bindAddrFlag
	}
	if *caPathFlag != "" {
		cfg.TLS.CAPath = *caPathFlag
	}
	if *certPathFlag != "" {
		cfg.TLS.CertPath = *certPathFlag
	}
	if *keyPathFlag != "" {
		cfg.TLS.KeyPath = *keyPathFlag
	}
	if *adminAddrFlag != "" {
		cfg.Admin.ListenAddr = *adminAddrFlag
	}

	if cfg.TLS.CAPath == "" || cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "" {
		log.Error("configuration error", "error", "tls.ca_path, tls.cert_path, and tls.key_path are all required")
		os.Exit(exitConfigError)
	}

	tlsConfig, err := newServerTLSConfig(cfg.TLS.CAPath, cfg.TLS.CertPath, cfg.TLS.KeyPath)
	if err != nil {
		log.Error("failed to load TLS material", "error", err)
		os.Exit(exitTLSLoadFailure)
	}

	bridge := NewBridgeServer(cfg, tlsConfig, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	go runMetricsLog(ctx, bridge, 30*time.Second, log)

	var admin *AdminServer
	if cfg.Admin.ListenAddr != "" {
		admin = NewAdminServer(bridge, log)
		go func() {
			if err := admin.Run(ctx, cfg.Admin.ListenAddr); err != nil {
				log.Error("admin server error", "error", err)
			}
		}()
	}

	if err := bridge.Run(ctx); err != nil {
		log.Error("bridge listener failed", "error", err)
		os.Exit(exitBindFailure)
	}
	os.Exit(exitOK)
}
