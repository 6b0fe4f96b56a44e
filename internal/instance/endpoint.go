package instance

import (
	"errors"
	"net"

	"github.com/matheus3301/wpprelay/internal/lock"
)

// ErrNoHTTPAddr is returned when the instance lock carries no HTTP address,
// usually because the daemon is not running.
var ErrNoHTTPAddr = errors.New("daemon HTTP address unknown")

// HTTPAddr returns a dialable host:port for the running daemon's HTTP
// listener, read from the instance lock file. Wildcard hosts become localhost.
func HTTPAddr(name string) (string, error) {
	info, err := lock.Read(Dir(name))
	if err != nil {
		return "", errors.Join(ErrNoHTTPAddr, err)
	}
	addr := info.Fields["http"]
	if addr == "" {
		return "", ErrNoHTTPAddr
	}
	return Dialable(addr)
}

// Dialable rewrites a listen address such as "[::]:8000" to one a client can
// connect to.
func Dialable(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return net.JoinHostPort(host, port), nil
}
