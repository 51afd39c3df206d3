// Package tlsconfig provides the client TLS configuration for the NATS
// connection. The client certificate is reloaded when its files change.
package tlsconfig

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/utils/certs/traefik"
)

var ErrNoCertificates = errors.New("no ca certificates found")

// Files names the sources of the TLS material. A Traefik store takes
// precedence over the cert/key pair.
type Files struct {
	CertFile      string
	KeyFile       string
	CAFile        string
	TraefikCerts  string
	TraefikDomain string
}

// Enabled reports whether any TLS source is configured
func (f Files) Enabled() bool {
	return f.CAFile != "" || f.hasCert()
}

func (f Files) hasCert() bool {
	return (f.CertFile != "" && f.KeyFile != "") ||
		(f.TraefikCerts != "" && f.TraefikDomain != "")
}

func (f Files) watched() []string {
	ret := make([]string, 0, 3)
	for _, file := range []string{f.CertFile, f.KeyFile, f.TraefikCerts} {
		if file != "" {
			ret = append(ret, file)
		}
	}
	return ret
}

type certs struct {
	ctx   context.Context
	files Files
	log   *log.Logger
	cert  *tls.Certificate
	mu    sync.RWMutex
}

// NewClientConfig returns nil if files configure no TLS at all.
// The returned config presents the client certificate (if any) and verifies
// the server with the CA (if any). Certificate changes are picked up until
// ctx is done.
func NewClientConfig(ctx context.Context, files Files) (*tls.Config, error) {
	if !files.Enabled() {
		return nil, nil
	}
	c := &certs{
		ctx:   ctx,
		files: files,
		log:   log.GetFromContext(ctx).Named("nats.certs"),
	}
	ret := &tls.Config{MinVersion: tls.VersionTLS12}
	if files.CAFile != "" {
		pool, err := loadCAs(files.CAFile)
		if err != nil {
			return nil, err
		}
		c.log.Info("Loaded ca cert", log.String("file", files.CAFile))
		ret.RootCAs = pool
	}
	if files.hasCert() {
		if err := c.loadCert(); err != nil {
			return nil, err
		}
		ret.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return c.current(), nil
		}
		if err := c.watchAndReloadCerts(); err != nil {
			c.log.Warn("certs will not be reloaded", log.ErrorField(err))
		}
	}
	return ret, nil
}

func loadCAs(file string) (*x509.CertPool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("could not read TLS root CA: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCertificates, file)
	}
	return pool, nil
}

func (c *certs) current() *tls.Certificate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cert
}

func (c *certs) loadCert() error {
	var cert tls.Certificate
	var err error
	if c.files.TraefikCerts != "" && c.files.TraefikDomain != "" {
		c.log.Info("Looking up traefik certs",
			log.String("file", c.files.TraefikCerts),
			log.String("domain", c.files.TraefikDomain))
		cert, err = traefik.LoadCertificate(c.files.TraefikCerts, c.files.TraefikDomain)
	} else {
		c.log.Info("Loading cert",
			log.String("key", c.files.KeyFile),
			log.String("cert", c.files.CertFile))
		cert, err = tls.LoadX509KeyPair(c.files.CertFile, c.files.KeyFile)
	}
	if err != nil {
		return fmt.Errorf("could not load client certificate: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cert = &cert
	return nil
}

func (c *certs) watchAndReloadCerts() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, file := range c.files.watched() {
		if err := watcher.Add(file); err != nil {
			watcher.Close()
			return err
		}
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-c.ctx.Done():
				c.log.Info("context done, stopping cert reload")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					c.log.Info("watcher events channel closed, stopping cert reload")
					return
				}
				c.log.Debug("change detected",
					log.String("file", event.Name), log.Any("event", event))
				if event.Op&fsnotify.Write == fsnotify.Write ||
					event.Op&fsnotify.Chmod == fsnotify.Chmod {

					c.log.Info("cert file changed, reloading cert",
						log.String("file", event.Name))
					// keep the previous cert if the files are in an intermediate state
					if err := c.loadCert(); err != nil {
						c.log.Error("could not reload cert", log.ErrorField(err))
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					c.log.Info("watcher errors channel closed, stopping cert reload")
					return
				}
				c.log.Error("watcher error", log.ErrorField(err))
			}
		}
	}()
	return nil
}
