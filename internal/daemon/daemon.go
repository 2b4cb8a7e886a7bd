// Package daemon runs the ephemeral single-session accept loop.
//
// One worker process owns one listening port and one conversation. The
// remote voice client opens a fresh HTTP connection for every turn, so the
// loop is strictly sequential: wait for a connection, hand it to the
// conversation for one turn, close it, wait again. There is no intra-process
// concurrency and no backlog handling beyond the OS accept queue.
//
// Abandonment is entirely timeout-driven: if no continuation arrives within
// the idle timeout, the conversation is over and the worker exits. A
// malformed probe (a connection without a well-formed continuation
// parameter) is rejected per-connection and never ends an otherwise healthy
// conversation.
package daemon

import (
	"bufio"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/voxbridge/host/internal/errors"
)

// ResultParam is the query parameter every continuation must carry.
const ResultParam = "result"

// readHeaderTimeout bounds parsing of an accepted connection's request, so
// a stalled probe cannot pin the loop past the conversation's idle budget.
const readHeaderTimeout = 10 * time.Second

// rejectRate throttles responses to malformed probes. Beyond the burst the
// probe's connection is dropped without a response body.
var rejectRate = rate.Limit(5)

const rejectBurst = 10

// Daemon owns the listening socket for one conversation.
type Daemon struct {
	ln      net.Listener
	idle    time.Duration
	limiter *rate.Limiter
	logger  *log.Logger
}

// New wraps an already-bound listener. If logger is nil, logs are discarded.
func New(ln net.Listener, idleTimeout time.Duration, logger *log.Logger) *Daemon {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Daemon{
		ln:      ln,
		idle:    idleTimeout,
		limiter: rate.NewLimiter(rejectRate, rejectBurst),
		logger:  logger,
	}
}

// Close releases the listener.
func (d *Daemon) Close() error {
	return d.ln.Close()
}

// Turn is one accepted continuation: a live connection plus its parsed
// request and the reply value it carried.
type Turn struct {
	conn    net.Conn
	Request *http.Request

	// Result is the continuation's reply value (the result= parameter).
	// Empty only for upload-marked continuations, whose document-driven
	// submit carries the recording in the body rather than a query reply.
	Result string

	body []byte
}

// Body returns the continuation's request body, nil when there is none.
// The body is read in full, under a deadline, before the turn is delivered.
func (t *Turn) Body() []byte {
	return t.body
}

// Respond writes doc as the turn's HTTP response and closes the connection.
// Every response disables caching: a replayed turn document would desync
// the conversation.
func (t *Turn) Respond(contentType, doc string) error {
	defer t.conn.Close()

	resp := &http.Response{
		StatusCode:    http.StatusOK,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        cacheDisabledHeader(contentType),
		Body:          io.NopCloser(strings.NewReader(doc)),
		ContentLength: int64(len(doc)),
		Close:         true,
	}
	if err := resp.Write(t.conn); err != nil {
		return errors.TurnWriteFailed(err)
	}
	return nil
}

// Close drops the connection without a response.
func (t *Turn) Close() error {
	return t.conn.Close()
}

func cacheDisabledHeader(contentType string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache, no-store")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	return h
}

// Next blocks until a well-formed continuation arrives or the idle timeout
// expires.
//
// Connections whose request cannot be parsed or whose result= parameter is
// missing get a forbidden response (rate-limited) and are dropped; the wait
// then continues on a fresh connection within the same idle budget. Idle
// expiry returns session.abandoned.
func (d *Daemon) Next() (*Turn, error) {
	deadline := time.Now().Add(d.idle)

	type deadliner interface {
		SetDeadline(time.Time) error
	}
	dl, ok := d.ln.(deadliner)
	if !ok {
		return nil, errors.SessionBindFailed(nil)
	}

	for {
		if err := dl.SetDeadline(deadline); err != nil {
			return nil, errors.SessionBindFailed(err)
		}

		conn, err := d.ln.Accept()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				return nil, errors.SessionAbandoned(d.idle.String())
			}
			return nil, errors.SessionBindFailed(err)
		}

		turn, ok := d.readTurn(conn, deadline)
		if !ok {
			continue
		}
		return turn, nil
	}
}

// readTurn parses a single request off conn and validates its continuation
// parameter. On any defect the connection is rejected and the caller keeps
// waiting.
//
// The whole read — headers and body — happens under one deadline capped by
// the idle budget, so a continuation that stalls mid-upload is rejected like
// any other malformed probe instead of wedging the conversation. The idle
// timeout stays the sole cancellation mechanism.
func (d *Daemon) readTurn(conn net.Conn, idleDeadline time.Time) (*Turn, bool) {
	readDeadline := time.Now().Add(readHeaderTimeout)
	if idleDeadline.Before(readDeadline) {
		readDeadline = idleDeadline
	}
	conn.SetReadDeadline(readDeadline)

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		d.logger.Printf("daemon: dropping unparsable connection from %s: %v", conn.RemoteAddr(), err)
		d.reject(conn)
		return nil, false
	}

	query := req.URL.Query()
	result := query.Get(ResultParam)
	upload := query.Get(UploadParam) == UploadValue
	if result == "" && !upload {
		d.logger.Printf("daemon: rejecting connection from %s without %s=", conn.RemoteAddr(), ResultParam)
		d.reject(conn)
		return nil, false
	}

	var body []byte
	if req.ContentLength != 0 {
		body, err = io.ReadAll(req.Body)
		if err != nil {
			d.logger.Printf("daemon: dropping connection from %s with incomplete body: %v", conn.RemoteAddr(), err)
			d.reject(conn)
			return nil, false
		}
	}
	conn.SetReadDeadline(time.Time{})

	return &Turn{conn: conn, Request: req, Result: result, body: body}, true
}

// reject answers a malformed probe with a forbidden status and drops it.
// Past the rate limit the connection is closed silently, so a probe flood
// cannot make the worker spend its idle budget writing responses.
func (d *Daemon) reject(conn net.Conn) {
	defer conn.Close()

	if !d.limiter.Allow() {
		return
	}

	resp := &http.Response{
		StatusCode:    http.StatusForbidden,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        cacheDisabledHeader("text/plain"),
		Body:          io.NopCloser(strings.NewReader("missing continuation parameter\n")),
		ContentLength: int64(len("missing continuation parameter\n")),
		Close:         true,
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = resp.Write(conn)
}
