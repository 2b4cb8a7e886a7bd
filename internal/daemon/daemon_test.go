package daemon

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/voxbridge/host/internal/errors"
)

func newTestDaemon(t *testing.T, idle time.Duration) (*Daemon, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := New(ln, idle, nil)
	t.Cleanup(func() { d.Close() })
	return d, ln.Addr().String()
}

// get issues a raw HTTP request against the daemon and returns the response.
func get(t *testing.T, addr, path string) *http.Response {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: x\r\n\r\n", path)
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close(); conn.Close() })
	return resp
}

// TestNext_WellFormed verifies a continuation with result= is returned as a
// turn carrying the parsed value.
func TestNext_WellFormed(t *testing.T) {
	d, addr := newTestDaemon(t, 5*time.Second)

	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		fmt.Fprintf(conn, "GET /?result=yes HTTP/1.1\r\nHost: x\r\n\r\n")
		// Leave the connection open; the turn holds it.
	}()

	turn, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	defer turn.Close()

	if turn.Result != "yes" {
		t.Errorf("Result = %q, want %q", turn.Result, "yes")
	}
}

// TestNext_IdleTimeout verifies the abandonment path: no connection within
// the idle budget ends the conversation with session.abandoned and no
// response was ever produced.
func TestNext_IdleTimeout(t *testing.T) {
	d, _ := newTestDaemon(t, 150*time.Millisecond)

	start := time.Now()
	_, err := d.Next()
	if !errors.HasCode(err, errors.CodeSessionAbandoned) {
		t.Fatalf("Next() = %v, want code %s", err, errors.CodeSessionAbandoned)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Next() took %v, want ~150ms", elapsed)
	}
}

// TestNext_RejectsMalformedThenAccepts verifies a probe without result= is
// answered 403 and dropped, while a subsequent well-formed continuation on
// the same conversation still succeeds.
func TestNext_RejectsMalformedThenAccepts(t *testing.T) {
	d, addr := newTestDaemon(t, 5*time.Second)

	done := make(chan struct{})
	var turn *Turn
	var nextErr error
	go func() {
		turn, nextErr = d.Next()
		close(done)
	}()

	// Malformed probe: no result parameter.
	resp := get(t, addr, "/?other=1")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("probe status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	// The conversation is still alive: a well-formed continuation lands.
	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		fmt.Fprintf(conn, "GET /?result=7 HTTP/1.1\r\nHost: x\r\n\r\n")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Next() did not return after the well-formed continuation")
	}
	if nextErr != nil {
		t.Fatalf("Next() error: %v", nextErr)
	}
	defer turn.Close()
	if turn.Result != "7" {
		t.Errorf("Result = %q, want %q", turn.Result, "7")
	}
}

// TestNext_StalledBodyRejected verifies a continuation that advertises a
// body it never finishes sending cannot wedge the conversation: the read is
// bounded by the idle budget, the connection is rejected, and the wait ends
// with session.abandoned instead of blocking forever.
func TestNext_StalledBodyRejected(t *testing.T) {
	d, addr := newTestDaemon(t, 500*time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	// Claims 1000 body bytes, delivers 7, then stalls.
	fmt.Fprintf(conn, "POST /?upload=audio&result=accept HTTP/1.1\r\nHost: x\r\n"+
		"Content-Type: multipart/form-data; boundary=B\r\nContent-Length: 1000\r\n\r\npartial")

	type outcome struct {
		turn *Turn
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		turn, err := d.Next()
		done <- outcome{turn, err}
	}()

	select {
	case got := <-done:
		if got.turn != nil {
			got.turn.Close()
			t.Fatal("Next() delivered a turn with an incomplete body")
		}
		if !errors.HasCode(got.err, errors.CodeSessionAbandoned) {
			t.Errorf("Next() = %v, want code %s", got.err, errors.CodeSessionAbandoned)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Next() still blocked well past the 500ms idle timeout")
	}
}

// TestNext_UploadWithoutResult verifies an upload-marked continuation is
// accepted without a query reply value, with its body pre-read in full.
func TestNext_UploadWithoutResult(t *testing.T) {
	d, addr := newTestDaemon(t, 5*time.Second)

	body := "--B\r\n\r\nAUDIO\r\n--B--"
	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		fmt.Fprintf(conn, "POST /?upload=audio HTTP/1.1\r\nHost: x\r\n"+
			"Content-Type: multipart/form-data; boundary=B\r\nContent-Length: %d\r\n\r\n%s",
			len(body), body)
	}()

	turn, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	defer turn.Close()

	if turn.Result != "" {
		t.Errorf("Result = %q, want empty for a document-driven submit", turn.Result)
	}
	if got := string(turn.Body()); got != body {
		t.Errorf("Body() = %q, want %q", got, body)
	}
}

// TestTurn_Respond verifies the response carries the document and the
// cache-disabling headers, and closes the connection.
func TestTurn_Respond(t *testing.T) {
	d, addr := newTestDaemon(t, 5*time.Second)

	type result struct {
		resp *http.Response
		body string
	}
	clientDone := make(chan result, 1)
	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprintf(conn, "GET /?result=start HTTP/1.1\r\nHost: x\r\n\r\n")
		resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		clientDone <- result{resp, string(body)}
	}()

	turn, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if err := turn.Respond("text/xml", "<vxml/>"); err != nil {
		t.Fatalf("Respond() error: %v", err)
	}

	select {
	case got := <-clientDone:
		if got.resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", got.resp.StatusCode)
		}
		if got.body != "<vxml/>" {
			t.Errorf("body = %q, want %q", got.body, "<vxml/>")
		}
		if cc := got.resp.Header.Get("Cache-Control"); cc != "no-cache, no-store" {
			t.Errorf("Cache-Control = %q, want %q", cc, "no-cache, no-store")
		}
		if ct := got.resp.Header.Get("Content-Type"); ct != "text/xml" {
			t.Errorf("Content-Type = %q, want %q", ct, "text/xml")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client never saw the response")
	}
}

// TestEndpoint_Action verifies direct and proxied continuation URLs.
func TestEndpoint_Action(t *testing.T) {
	direct := Endpoint{Host: "gw.example.com", Port: 7501}
	if got, want := direct.Action(), "http://gw.example.com:7501/"; got != want {
		t.Errorf("direct Action() = %q, want %q", got, want)
	}
	if got, want := direct.Action(UploadMarker), "http://gw.example.com:7501/?upload=audio"; got != want {
		t.Errorf("direct Action(upload) = %q, want %q", got, want)
	}
	if got, want := direct.RedirectTarget(), "http://gw.example.com:7501/?result=start"; got != want {
		t.Errorf("direct RedirectTarget() = %q, want %q", got, want)
	}
	if got, want := direct.Mode(), "direct"; got != want {
		t.Errorf("direct Mode() = %q, want %q", got, want)
	}

	proxied := Endpoint{Host: "gw.example.com", Port: 7561, Proxied: true, FrontURL: "http://gw.example.com/cgi-bin/ivr"}
	if got, want := proxied.Action(), "http://gw.example.com/cgi-bin/ivr?proxyfor=7561"; got != want {
		t.Errorf("proxied Action() = %q, want %q", got, want)
	}
	if got, want := proxied.Action(UploadMarker), "http://gw.example.com/cgi-bin/ivr?proxyfor=7561&upload=audio"; got != want {
		t.Errorf("proxied Action(upload) = %q, want %q", got, want)
	}
	if !strings.HasSuffix(proxied.RedirectTarget(), "proxyfor=7561&result=start") {
		t.Errorf("proxied RedirectTarget() = %q, want proxyfor then result", proxied.RedirectTarget())
	}
	if got, want := proxied.Mode(), "proxied"; got != want {
		t.Errorf("proxied Mode() = %q, want %q", got, want)
	}
}
