// Package traefik reads certificates from the acme.json store of a Traefik
// proxy running next to the NATS server.
package traefik

import (
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

var ErrDomainNotFound = errors.New("domain not found")

type acmeEntry struct {
	Certificate string `json:"certificate"`
	Key         string `json:"key"`
}

// LoadCertificate reads the acme store file and returns the key pair of domain
func LoadCertificate(file, domain string) (tls.Certificate, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return tls.Certificate{}, err
	}
	return ParseCertificate(string(data), domain)
}

func ParseCertificate(store, domain string) (tls.Certificate, error) {
	entry, err := lookup(store, domain)
	if err != nil {
		return tls.Certificate{}, err
	}
	certPEM, err := base64.StdEncoding.DecodeString(entry.Certificate)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("certificate of %s: %w", domain, err)
	}
	keyPEM, err := base64.StdEncoding.DecodeString(entry.Key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("key of %s: %w", domain, err)
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// lookup searches all resolvers of the store for the main domain
func lookup(store, domain string) (acmeEntry, error) {
	obj, err := oj.ParseString(store)
	if err != nil {
		return acmeEntry{}, err
	}
	path, err := jp.ParseString(
		fmt.Sprintf(`$..Certificates[?(@.domain.main == %q)]`, domain))
	if err != nil {
		return acmeEntry{}, err
	}
	res := path.Get(obj)
	if len(res) == 0 {
		return acmeEntry{}, fmt.Errorf("%w: %s", ErrDomainNotFound, domain)
	}
	ret := acmeEntry{}
	if err := oj.Unmarshal([]byte(oj.JSON(res[0])), &ret); err != nil {
		return acmeEntry{}, err
	}
	return ret, nil
}
