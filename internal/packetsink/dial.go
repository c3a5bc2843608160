package packetsink

import (
	"encoding/binary"
	"encoding/hex"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alxayo/txproto-go/internal/errors"
)

// dialTimeout bounds both the TCP connect and the handshake's single
// write/read. One second, the same single-wait budget the rest of the
// runtime gives a pipe write.
const dialTimeout = time.Second

// Endpoint is a parsed kymux:// URI: "kymux://HOST:PORT/<hex endpoint
// id>".
type Endpoint struct {
	Host       string
	Port       string
	EndpointID uint16
}

// ParseEndpoint parses a kymux:// URI.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, errors.NewInvalidArgError("packetsink.endpoint.parse", err)
	}
	if u.Scheme != "kymux" {
		return Endpoint{}, errors.NewInvalidArgError("packetsink.endpoint.scheme", nil)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return Endpoint{}, errors.NewInvalidArgError("packetsink.endpoint.host_port", err)
	}
	hexID := strings.TrimPrefix(u.Path, "/")
	raw16, err := hex.DecodeString(hexID)
	if err != nil || len(raw16) != 2 {
		return Endpoint{}, errors.NewInvalidArgError("packetsink.endpoint.id", err)
	}
	return Endpoint{Host: host, Port: port, EndpointID: binary.BigEndian.Uint16(raw16)}, nil
}

// Dial connects to ep's HOST:PORT, sends the 2-byte endpoint id in
// network order, reads the 1-byte sync reply, and returns the live
// connection ready for a Writer to stream packets over.
func Dial(ep Endpoint) (net.Conn, error) {
	addr := net.JoinHostPort(ep.Host, ep.Port)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, errors.NewExternalError("packetsink.dial.tcp", 0, err)
	}

	if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
		conn.Close()
		return nil, errors.NewExternalError("packetsink.dial.set_deadline", 0, err)
	}

	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], ep.EndpointID)
	if _, err := conn.Write(idBuf[:]); err != nil {
		conn.Close()
		return nil, errors.NewExternalError("packetsink.dial.write_id", 0, err)
	}

	var sync [1]byte
	if _, err := conn.Read(sync[:]); err != nil {
		conn.Close()
		return nil, errors.NewExternalError("packetsink.dial.read_sync", 0, err)
	}

	// Clear the handshake deadline; the packet stream itself runs
	// unbounded. Teardown does not interrupt a blocking socket write,
	// a known gap, not fixed here.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, errors.NewExternalError("packetsink.dial.clear_deadline", 0, err)
	}
	return conn, nil
}

// endpointIDFromHex parses a bare hex endpoint id, for code in this
// package that builds an Endpoint without a full URI.
func endpointIDFromHex(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, errors.NewInvalidArgError("packetsink.endpoint_id.hex", err)
	}
	return uint16(v), nil
}
