package daemon

import (
	"fmt"
	"strings"
)

// InitialResult is the placeholder value appended to the redirect target so
// the conversation's very first request parses like any continuation.
const InitialResult = "start"

// UploadParam and UploadValue mark a continuation as a recording
// submission. The tunnel forwards marked continuations as body-carrying
// POSTs, and the daemon accepts them without a query reply value since a
// document-driven multipart submit carries its payload in the body.
const (
	UploadParam = "upload"
	UploadValue = "audio"

	// UploadMarker is the assembled query parameter, for action URLs.
	UploadMarker = UploadParam + "=" + UploadValue
)

// Endpoint identifies where the voice client reaches this conversation.
// It is built once per worker lifetime, right after the port is bound, and
// never changes.
type Endpoint struct {
	// Host is the hostname placed in direct-mode URLs.
	Host string

	// Port is the worker's bound listening port.
	Port int

	// Proxied means the port fell outside the configured range, so the
	// client cannot be assumed to reach it directly; every URL routes
	// through the front end instead.
	Proxied bool

	// FrontURL is the invoking front end's own URL, used in proxied mode.
	FrontURL string
}

// Mode renders the endpoint mode for logging and call records.
func (e Endpoint) Mode() string {
	if e.Proxied {
		return "proxied"
	}
	return "direct"
}

// Action builds a continuation URL carrying the given extra query
// parameters. Direct mode targets the worker's port; proxied mode targets
// the front end with the worker's port in the proxyfor parameter.
func (e Endpoint) Action(extra ...string) string {
	if e.Proxied {
		params := append([]string{fmt.Sprintf("proxyfor=%d", e.Port)}, extra...)
		return e.FrontURL + "?" + strings.Join(params, "&")
	}

	base := fmt.Sprintf("http://%s:%d/", e.Host, e.Port)
	if len(extra) == 0 {
		return base
	}
	return base + "?" + strings.Join(extra, "&")
}

// RedirectTarget is the URL the invoker sends the voice client to: the
// endpoint with the placeholder continuation parameter appended.
func (e Endpoint) RedirectTarget() string {
	return e.Action(ResultParam + "=" + InitialResult)
}
