package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// newServerTLSConfig builds the mutually-authenticated TLS 1.3 config for
// the bridge's TLS listener: the server presents cert/key and
// requires every client to present a certificate verified against caPath.
// Grounded on nishisan-dev-n-backup's internal/pki.NewServerTLSConfig,
// adapted from TCP framing to WebTransport's ALPN-negotiated QUIC.
func newServerTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading server certificate: %w", err)
	}

	pool, err := loadCACertPool(caPath)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		NextProtos:   []string{"h3"},
	}, nil
}

// newClientTLSConfig builds the matching client-side config, used by the
// end-to-end test harness to dial the mutually-authenticated listener.
func newClientTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	pool, err := loadCACertPool(caPath)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		NextProtos:   []string{"h3"},
	}, nil
}

func loadCACertPool(caPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate from %s", caPath)
	}
	return pool, nil
}

// devCA is a throwaway self-signed CA generated in-memory using ECDSA
// P256; issueLeaf mints leaf certificates signed by it, so tests can mint
// both a server and a client certificate that chain to the same trust
// root, satisfying the mutual-TLS requirement. Never used when
// tls.ca_path/cert_path/key_path are configured.
type devCA struct {
	certDER []byte
	cert    *x509.Certificate
	key     *ecdsa.PrivateKey
}

func newDevCA(validity time.Duration) (*devCA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("[tls] generate ca key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("[tls] generate ca serial: %w", err)
	}
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "bridge-dev-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("[tls] create ca certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("[tls] parse ca certificate: %w", err)
	}
	return &devCA{certDER: certDER, cert: cert, key: key}, nil
}

func (ca *devCA) certPEM() []byte {
	return pemBlock("CERTIFICATE", ca.certDER)
}

// issueLeaf mints a leaf certificate signed by the CA for the given
// hostname/CN (an IP literal becomes an IP SAN), valid for both client
// auth and server auth.
func (ca *devCA) issueLeaf(cn string, validity time.Duration) (certPEM, keyPEM []byte, fingerprint string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, "", fmt.Errorf("[tls] generate leaf key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, "", fmt.Errorf("[tls] generate leaf serial: %w", err)
	}
	sans := []string{"localhost"}
	var ips []net.IP
	if ip := net.ParseIP(cn); ip != nil {
		ips = append(ips, ip)
	} else if cn != "" && cn != "localhost" {
		sans = append(sans, cn)
	}
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:     sans,
		IPAddresses:  ips,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return nil, nil, "", fmt.Errorf("[tls] create leaf certificate: %w", err)
	}
	fp := sha256.Sum256(der)

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, "", fmt.Errorf("[tls] marshal leaf key: %w", err)
	}
	return pemBlock("CERTIFICATE", der), pemBlock("EC PRIVATE KEY", keyDER), hex.EncodeToString(fp[:]), nil
}

func pemBlock(kind string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: kind, Bytes: der})
}
