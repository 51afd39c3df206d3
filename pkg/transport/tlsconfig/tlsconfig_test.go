package tlsconfig

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSigned returns PEM encoded cert and key for cn
func selfSigned(t *testing.T, cn string) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDer, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer})
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	file := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(file, data, 0o600))
	return file
}

func commonName(t *testing.T, cfg *tls.Config) string {
	t.Helper()
	cert, err := cfg.GetClientCertificate(&tls.CertificateRequestInfo{})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return leaf.Subject.CommonName
}

func TestNewClientConfig_Disabled(t *testing.T) {
	cfg, err := NewClientConfig(context.Background(), Files{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
	// cert without key is not enough
	assert.False(t, Files{CertFile: "cert.pem"}.Enabled())
}

func TestNewClientConfig_KeyPair(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	certPEM, keyPEM := selfSigned(t, "console-1")
	files := Files{
		CertFile: writeFile(t, dir, "cert.pem", certPEM),
		KeyFile:  writeFile(t, dir, "key.pem", keyPEM),
		CAFile:   writeFile(t, dir, "ca.pem", certPEM),
	}
	cfg, err := NewClientConfig(ctx, files)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, "console-1", commonName(t, cfg))

	certPEM, keyPEM = selfSigned(t, "console-2")
	// key first, the intermediate state is rejected and the old cert kept
	writeFile(t, dir, "key.pem", keyPEM)
	writeFile(t, dir, "cert.pem", certPEM)
	assert.Eventually(t, func() bool {
		return commonName(t, cfg) == "console-2"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewClientConfig_Traefik(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	certPEM, keyPEM := selfSigned(t, "nats.example.com")
	store := fmt.Sprintf(
		`{"le":{"Certificates":[{"domain":{"main":"nats.example.com"},"certificate":%q,"key":%q}]}}`,
		base64.StdEncoding.EncodeToString(certPEM),
		base64.StdEncoding.EncodeToString(keyPEM))
	files := Files{
		TraefikCerts:  writeFile(t, t.TempDir(), "acme.json", []byte(store)),
		TraefikDomain: "nats.example.com",
	}
	cfg, err := NewClientConfig(ctx, files)
	require.NoError(t, err)
	assert.Nil(t, cfg.RootCAs)
	assert.Equal(t, "nats.example.com", commonName(t, cfg))
}

func TestNewClientConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewClientConfig(context.Background(), Files{
		CAFile: writeFile(t, dir, "ca.pem", []byte("no pem here")),
	})
	assert.ErrorIs(t, err, ErrNoCertificates)

	_, err = NewClientConfig(context.Background(), Files{
		CertFile: filepath.Join(dir, "missing.pem"),
		KeyFile:  filepath.Join(dir, "missing.key"),
	})
	assert.Error(t, err)
}
