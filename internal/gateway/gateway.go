// Package gateway parses the CGI environment the front end is invoked with
// and writes CGI responses. It is a thin surface by design: the bridge's
// engineering lives behind it, and this package only maps environment
// variables and stdin onto a typed invocation.
package gateway

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/voxbridge/host/internal/errors"
)

// Invocation is one CGI request to the front end.
type Invocation struct {
	// Method is the HTTP method, defaulting to GET.
	Method string

	// RawQuery is the query string exactly as received. Proxy remainders
	// are carved out of this verbatim, so it is kept unparsed.
	RawQuery string

	// Query is the parsed form of RawQuery.
	Query url.Values

	// Body is the request body, present for POSTed recording uploads.
	Body []byte

	// ContentType is the inbound Content-Type header, forwarded verbatim
	// with relayed uploads so the worker can recover the multipart boundary.
	ContentType string

	// SelfURL is the front end's own URL without any query string. Tunnel
	// continuations route back through it.
	SelfURL string

	// Host is the server's hostname for direct-mode endpoint URLs.
	Host string
}

// FromEnv builds an Invocation from the process environment and stdin.
func FromEnv(stdin io.Reader) (*Invocation, error) {
	return fromEnviron(os.Getenv, stdin)
}

// fromEnviron is the testable core of FromEnv.
func fromEnviron(getenv func(string) string, stdin io.Reader) (*Invocation, error) {
	inv := &Invocation{
		Method:   getenv("REQUEST_METHOD"),
		RawQuery: getenv("QUERY_STRING"),
	}
	if inv.Method == "" {
		inv.Method = "GET"
	}

	q, err := url.ParseQuery(inv.RawQuery)
	if err != nil {
		// A query the front end cannot parse still relays verbatim in
		// proxy mode, so keep the raw string and an empty map.
		q = url.Values{}
	}
	inv.Query = q

	inv.Host = getenv("SERVER_NAME")
	if inv.Host == "" {
		if h, err := os.Hostname(); err == nil {
			inv.Host = h
		} else {
			inv.Host = "localhost"
		}
	}

	inv.SelfURL = selfURL(getenv, inv.Host)
	inv.ContentType = getenv("CONTENT_TYPE")

	if n, err := strconv.Atoi(getenv("CONTENT_LENGTH")); err == nil && n > 0 && stdin != nil {
		body := make([]byte, n)
		read, err := io.ReadFull(stdin, body)
		if err != nil && read == 0 {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		inv.Body = body[:read]
	}

	return inv, nil
}

// selfURL reconstructs the front end's own URL. SCRIPT_URI is used when the
// server provides it; otherwise the URL is assembled from the standard CGI
// variables.
func selfURL(getenv func(string) string, host string) string {
	if uri := getenv("SCRIPT_URI"); uri != "" {
		return uri
	}

	scheme := "http"
	if getenv("HTTPS") == "on" {
		scheme = "https"
	}

	port := getenv("SERVER_PORT")
	hostPort := host
	if port != "" && port != "80" && port != "443" {
		hostPort = host + ":" + port
	}

	path := getenv("SCRIPT_NAME")
	if path == "" {
		path = "/"
	}

	return scheme + "://" + hostPort + path
}

// ProxyTarget reports whether this invocation is a tunnel relay, and if so,
// the target port and the verbatim query remainder to forward.
//
// The relay form is proxyfor=<port>&<remainder>; the remainder may be empty.
// A present-but-unparsable port is an error rather than a pass-through,
// since treating it as a first invocation would spawn a stray worker.
func (inv *Invocation) ProxyTarget() (port int, remainder string, ok bool, err error) {
	const prefix = "proxyfor="
	if !strings.HasPrefix(inv.RawQuery, prefix) {
		return 0, "", false, nil
	}

	rest := inv.RawQuery[len(prefix):]
	rawPort := rest
	if i := strings.Index(rest, "&"); i >= 0 {
		rawPort = rest[:i]
		remainder = rest[i+1:]
	}

	port, perr := strconv.Atoi(rawPort)
	if perr != nil || port <= 0 || port > 65535 {
		return 0, "", false, errors.ProxyBadPort(rawPort)
	}

	return port, remainder, true, nil
}

// WriteResponse writes a CGI response: the content-type header block
// followed by the body. Cache-disabling headers are always included; every
// bridge response is conversation state that must not be replayed.
func WriteResponse(w io.Writer, contentType, body string) error {
	_, err := fmt.Fprintf(w,
		"Content-Type: %s\r\nCache-Control: no-cache, no-store\r\nPragma: no-cache\r\nExpires: 0\r\n\r\n%s",
		contentType, body)
	return err
}
