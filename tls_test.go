package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeDevPKI(t *testing.T) (caPath, serverCertPath, serverKeyPath, clientCertPath, clientKeyPath string) {
	t.Helper()
	ca, err := newDevCA(time.Hour)
	if err != nil {
		t.Fatalf("newDevCA: %v", err)
	}

	serverCert, serverKey, _, err := ca.issueLeaf("bridge-server", time.Hour)
	if err != nil {
		t.Fatalf("issue server leaf: %v", err)
	}
	clientCert, clientKey, fp, err := ca.issueLeaf("bridge-client", time.Hour)
	if err != nil {
		t.Fatalf("issue client leaf: %v", err)
	}
	if fp == "" {
		t.Fatal("expected non-empty fingerprint")
	}

	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	caPath = write("ca.pem", ca.certPEM())
	serverCertPath = write("server-cert.pem", serverCert)
	serverKeyPath = write("server-key.pem", serverKey)
	clientCertPath = write("client-cert.pem", clientCert)
	clientKeyPath = write("client-key.pem", clientKey)
	return
}

func TestNewServerTLSConfigRequiresClientCert(t *testing.T) {
	caPath, serverCertPath, serverKeyPath, _, _ := writeDevPKI(t)

	cfg, err := newServerTLSConfig(caPath, serverCertPath, serverKeyPath)
	if err != nil {
		t.Fatalf("newServerTLSConfig: %v", err)
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", cfg.ClientAuth)
	}
	if cfg.ClientCAs == nil {
		t.Error("expected ClientCAs pool to be set")
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(cfg.Certificates))
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %v, want TLS 1.3", cfg.MinVersion)
	}
}

func TestNewClientTLSConfigTrustsCA(t *testing.T) {
	caPath, _, _, clientCertPath, clientKeyPath := writeDevPKI(t)

	cfg, err := newClientTLSConfig(caPath, clientCertPath, clientKeyPath)
	if err != nil {
		t.Fatalf("newClientTLSConfig: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Error("expected RootCAs pool to be set")
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(cfg.Certificates))
	}
}

func TestNewServerTLSConfigMissingFileFails(t *testing.T) {
	if _, err := newServerTLSConfig("nope.pem", "nope.pem", "nope.pem"); err == nil {
		t.Fatal("expected error for missing cert material")
	}
}

func TestDevCAIssuesLeafChainingToCA(t *testing.T) {
	ca, err := newDevCA(time.Hour)
	if err != nil {
		t.Fatalf("newDevCA: %v", err)
	}
	certPEM, _, fp1, err := ca.issueLeaf("a", time.Hour)
	if err != nil {
		t.Fatalf("issueLeaf: %v", err)
	}
	_, _, fp2, err := ca.issueLeaf("b", time.Hour)
	if err != nil {
		t.Fatalf("issueLeaf: %v", err)
	}
	if fp1 == fp2 {
		t.Error("two leaves should have distinct fingerprints")
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		t.Fatal("failed to decode leaf PEM")
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(ca.cert)
	if _, err := leaf.Verify(x509.VerifyOptions{DNSName: "localhost", Roots: pool}); err != nil {
		t.Errorf("leaf did not verify against CA: %v", err)
	}
}
