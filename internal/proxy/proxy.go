// Package proxy relays a voice client's continuation to a worker whose
// ephemeral port the client cannot reach directly.
//
// The front end is invoked with proxyfor=<port>&<remainder>; the tunnel
// forwards the remainder to the local worker and streams the response back
// verbatim. It only ever targets localhost: the worker always runs on the
// same machine as the front end, and the tunnel exists purely to route
// around network paths that stop at the front-end URL.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxbridge/host/internal/vxml"
)

// defaultTimeout bounds one relay round trip. The worker answers each
// continuation promptly (its own waiting happens between turns, not within
// one), so a stall here means the worker is gone.
const defaultTimeout = 30 * time.Second

// Tunnel relays continuations to a local worker.
type Tunnel struct {
	client *http.Client
	logger *log.Logger
}

// New creates a tunnel. If logger is nil, logs are discarded.
func New(logger *log.Logger) *Tunnel {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Tunnel{
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
}

// Response is the rendered relay outcome. Err reporting is deliberately
// absent: a failed relay is converted into a spoken-error document, since
// the voice client cannot render a transport fault.
type Response struct {
	ContentType string
	Body        []byte
}

// IsUpload reports whether the remainder marks a recording submission,
// which must be forwarded as a body-carrying POST.
func IsUpload(remainder string) bool {
	q, err := url.ParseQuery(remainder)
	if err != nil {
		// Fall back to a substring check; a remainder the worker can't
		// parse will be rejected there.
		return strings.Contains(remainder, "upload=audio")
	}
	return q.Get("upload") == "audio"
}

// Relay forwards the remainder query to the worker on targetPort and
// returns the rendered response.
//
// GET is used for ordinary continuations; recording submissions (detected
// by the upload marker) forward the inbound body unchanged as a POST. On a
// transport failure or an error status from the worker, the response is a
// minimal spoken-error document carrying the human-readable message.
func (t *Tunnel) Relay(targetPort int, remainder string, contentType string, body []byte) *Response {
	target := fmt.Sprintf("http://127.0.0.1:%d/?%s", targetPort, remainder)

	var req *http.Request
	var err error
	if IsUpload(remainder) {
		req, err = http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
		if err == nil && contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
	} else {
		req, err = http.NewRequest(http.MethodGet, target, nil)
	}
	if err != nil {
		return t.errorResponse(err.Error())
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Printf("proxy: relay to port %d failed: %v", targetPort, err)
		return t.errorResponse(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		t.logger.Printf("proxy: worker on port %d answered %s", targetPort, resp.Status)
		return t.errorResponse(fmt.Sprintf("the conversation refused the request (%s)", resp.Status))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return t.errorResponse(err.Error())
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = vxml.ContentType
	}
	return &Response{ContentType: ct, Body: data}
}

func (t *Tunnel) errorResponse(msg string) *Response {
	return &Response{
		ContentType: vxml.ContentType,
		Body:        []byte(vxml.ErrorDocument(msg)),
	}
}
