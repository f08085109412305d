package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/berrythewa/ifmctl/internal/errors"
)

// Kind is the transport family of an endpoint
type Kind string

const (
	KindTCP Kind = "tcp"
	KindIPC Kind = "ipc"
)

// Endpoint identifies one side of a channel: a network endpoint (host:port)
// or a local-machine endpoint (filesystem path).
type Endpoint struct {
	Kind Kind
	Host string // tcp only, may be "*" when binding
	Port int    // tcp only
	Path string // ipc only
}

// String renders the endpoint in the tcp:// or ipc:// form used on the wire
func (e Endpoint) String() string {
	switch e.Kind {
	case KindTCP:
		return "tcp://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	case KindIPC:
		return "ipc://" + e.Path
	default:
		return ""
	}
}

// IsZero reports whether the endpoint was never set
func (e Endpoint) IsZero() bool {
	return e == Endpoint{}
}

// ParseEndpoint accepts "tcp://host:port", "ipc://path" and the multiaddr
// spellings "/ip4/<addr>/tcp/<port>", "/ip6/...", "/dns4/<name>/tcp/<port>"
// and "/unix/<path>".
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	var (
		ep  Endpoint
		err error
	)
	switch {
	case strings.HasPrefix(s, "tcp://"):
		ep, err = parseTCP(strings.TrimPrefix(s, "tcp://"))
	case strings.HasPrefix(s, "ipc://"):
		ep, err = parseIPC(strings.TrimPrefix(s, "ipc://"))
	case strings.HasPrefix(s, "/"):
		ep, err = parseMultiaddr(s)
	default:
		err = fmt.Errorf("unsupported scheme in %q (want tcp://, ipc:// or a multiaddr)", s)
	}
	if err != nil {
		return Endpoint{}, errors.WrapLocal(fmt.Errorf("%w: %v", errors.ErrInvalidEndpoint, err), "transport", "ParseEndpoint")
	}
	return ep, nil
}

// MustParseEndpoint is ParseEndpoint for constants known to be valid
func MustParseEndpoint(s string) Endpoint {
	ep, err := ParseEndpoint(s)
	if err != nil {
		panic(err)
	}
	return ep
}

func parseTCP(hostport string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, err
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("missing host in %q", hostport)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Kind: KindTCP, Host: host, Port: port}, nil
}

func parseIPC(path string) (Endpoint, error) {
	if path == "" {
		return Endpoint{}, fmt.Errorf("missing ipc path")
	}
	return Endpoint{Kind: KindIPC, Path: path}, nil
}

func parseMultiaddr(s string) (Endpoint, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return Endpoint{}, err
	}

	if path, err := addr.ValueForProtocol(ma.P_UNIX); err == nil {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return parseIPC(path)
	}

	portStr, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return Endpoint{}, fmt.Errorf("multiaddr %q has neither /tcp nor /unix", s)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return Endpoint{}, err
	}

	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if host, err := addr.ValueForProtocol(code); err == nil {
			return Endpoint{Kind: KindTCP, Host: host, Port: port}, nil
		}
	}
	return Endpoint{}, fmt.Errorf("multiaddr %q has no host component", s)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
