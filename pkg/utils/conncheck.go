package utils

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/mpapenbr/racegrid/log"
)

// WaitForTCP tries to connect to addr until it succeeds, the timeout is
// reached or ctx is done
func WaitForTCP(ctx context.Context, addr string, timeout time.Duration) error {
	timeoutReached := time.Now().Add(timeout)
	start := time.Now()
	log.Debug("wait for tcp connection",
		log.String("addr", addr),
		log.String("timeout", timeout.String()))
	var d net.Dialer
	for time.Now().Before(timeoutReached) {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()

			log.Debug("tcp connection successful",
				log.String("addr", addr),
				log.String("duration", time.Since(start).String()))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("%s could not be reached after %v", addr, timeout)
}

// ExtractFromNatsURL returns the host:port of every server in a NATS url list
// like "nats://user:pw@host1:4222,nats://host2"
func ExtractFromNatsURL(url string) []string {
	ret := make([]string, 0)
	for _, item := range strings.Split(url, ",") {
		item = strings.TrimSpace(item)
		if !strings.Contains(item, "://") {
			item = "nats://" + item
		}
		param := resolveRegex(
			"^(?P<proto>nats|tls|ws|wss)://(.*@)?(?P<addr>(?P<host>[^:/]*?)(:(?P<port>\\d+))?)/?$",
			item)
		if len(param) == 0 || param["host"] == "" {
			continue
		}
		if port, ok := param["port"]; ok && port != "" {
			// if port is found, the addr contains our wanted value
			ret = append(ret, param["addr"])
		} else {
			ret = append(ret, fmt.Sprintf("%s:4222", param["host"]))
		}
	}
	return ret
}

func resolveRegex(regEx, url string) (paramsMap map[string]string) {
	compRegEx := regexp.MustCompile(regEx)
	match := compRegEx.FindStringSubmatch(url)

	paramsMap = make(map[string]string)
	if match == nil {
		return paramsMap
	}
	for i, name := range compRegEx.SubexpNames() {
		if i > 0 && i < len(match) && name != "" {
			paramsMap[name] = match[i]
		}
	}
	return paramsMap
}
