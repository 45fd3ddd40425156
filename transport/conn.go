package transport

import (
	"bufio"
	"io"
	"net"

	"github.com/geds-project/geds/handle"
	"github.com/geds-project/geds/internal/glog"
	"github.com/geds-project/geds/internal/xerrors"
)

// ConnState names a point in the per-connection state machine (spec §4.6):
// Idle -> AwaitingRequest -> Parsing -> Serving -> {Idle | Closing}. A
// parse failure transitions straight to Serving (with an error response)
// and back to Idle rather than to Closing, keeping the connection alive
// under keep-alive.
type ConnState int

const (
	StateIdle ConnState = iota
	StateAwaitingRequest
	StateParsing
	StateServing
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingRequest:
		return "awaiting-request"
	case StateParsing:
		return "parsing"
	case StateServing:
		return "serving"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// HandleOpener opens the local handle for (bucket, key), bypassing the MDS
// — "open the handle locally (not via MDS)" per spec §4.6. Supplied by the
// node package.
type HandleOpener func(bucket, key string) (handle.Handle, error)

const defaultMaxRequestLine = 4096

// Server accepts connections on a single TCP listener and serves GET range
// requests against handles opened through open.
type Server struct {
	ln      net.Listener
	open    HandleOpener
	pool    *BufPool
	maxLine int
}

// NewServer wraps an already-bound listener; callers construct the
// listener (net.Listen("tcp", addr)) so tests can bind to an ephemeral
// port.
func NewServer(ln net.Listener, open HandleOpener, pool *BufPool) *Server {
	return &Server{ln: ln, open: open, pool: pool, maxLine: defaultMaxRequestLine}
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve runs the accept loop, spawning one goroutine per connection. It
// returns when the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			glog.Warningf("transport: accepted non-TCP connection, closing")
			conn.Close()
			continue
		}
		go s.serve(tcpConn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.ln.Close() }

func (s *Server) serve(conn *net.TCPConn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	state := StateIdle
	for {
		state = StateAwaitingRequest
		line, err := ReadGetRequestLine(r, s.maxLine)
		if err != nil {
			if err != io.EOF {
				glog.Warningf("transport: conn in state %v: %v", state, err)
			}
			return // peer closed or sent garbage past the size bound
		}

		state = StateParsing
		req, perr := ParseGetRequest(line)
		if perr != nil {
			state = StateServing
			glog.Warningf("transport: conn in state %v: %v", state, perr)
			s.writeError(conn, perr)
			state = StateIdle
			continue
		}

		state = StateServing
		if !s.serveGet(conn, req) {
			state = StateClosing
			glog.Warningf("transport: conn in state %v: closing connection", state)
			return
		}
		state = StateIdle
	}
}

// serveGet handles one parsed GET request, returning false if the
// connection should be closed (an unrecoverable I/O error writing the
// response).
func (s *Server) serveGet(conn *net.TCPConn, req GetRequest) bool {
	if glog.ModuleV(glog.SmoduleTransport, 4) {
		glog.Infof("transport: GET %s/%s offset=%d length=%d", req.Bucket, req.Key, req.Offset, req.Length)
	}
	h, err := s.open(req.Bucket, req.Key)
	if err != nil {
		return s.writeError(conn, err)
	}
	h.Open()
	defer h.Release()

	size := h.Size()
	length := req.Length
	if req.Offset >= size {
		length = 0
	} else if req.Offset+length > size {
		length = size - req.Offset
	}

	if err := WriteResponseHeader(conn, ResponseHeader{StatusCode: 0, Length: uint64(length)}); err != nil {
		return false
	}
	if length == 0 {
		return true
	}
	if err := SendRange(conn, h, req.Offset, length, s.pool); err != nil {
		glog.Warningf("transport: serving %s/%s: %v", req.Bucket, req.Key, err)
		return false
	}
	return true
}

// writeError writes an error response (non-zero status, UTF-8 message
// payload) and reports whether the connection can continue.
func (s *Server) writeError(conn *net.TCPConn, err error) bool {
	msg := err.Error()
	hdr := ResponseHeader{StatusCode: int32(xerrors.KindOf(err)), Length: uint64(len(msg))}
	if werr := WriteResponseHeader(conn, hdr); werr != nil {
		return false
	}
	if _, werr := conn.Write([]byte(msg)); werr != nil {
		return false
	}
	return true
}
