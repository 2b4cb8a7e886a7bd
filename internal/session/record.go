package session

import (
	"bytes"
	"mime"
	"net/http"
	"strings"

	"github.com/voxbridge/host/internal/errors"
)

// requestBoundary extracts the multipart boundary from a recording
// continuation's Content-Type, or "" when the header is absent or
// unparsable. ParseRecording then falls back to detecting the boundary from
// the body itself.
func requestBoundary(req *http.Request) string {
	ct := req.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return params["boundary"]
}

// ParseRecording extracts the first part's payload from a multipart body.
//
// The parse is deliberately permissive: locate the boundary line (detecting
// it from the body's first "--" line when boundary is empty), skip the
// part's header lines up to the first blank line, accumulate payload lines
// until the boundary recurs, and discard everything after. A missing
// terminal boundary just takes the remainder as payload. Only a body in
// which no boundary can be located at all returns record.no_boundary; the
// caller decides whether that is fatal.
func ParseRecording(boundary string, body []byte) ([]byte, error) {
	lines := splitLines(body)

	marker := ""
	if boundary != "" {
		marker = "--" + boundary
	}

	// Find the opening boundary line.
	start := -1
	for i, line := range lines {
		text := string(line)
		if marker != "" {
			if strings.HasPrefix(text, marker) {
				start = i
				break
			}
			continue
		}
		if strings.HasPrefix(text, "--") && len(text) > 2 {
			marker = strings.TrimRight(text, "-")
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errors.RecordNoBoundary()
	}

	// Skip the part headers up to the first blank line.
	i := start + 1
	for i < len(lines) && len(bytes.TrimSpace(lines[i])) != 0 {
		i++
	}
	i++ // past the blank line

	// Accumulate payload until the boundary recurs.
	var payload [][]byte
	for ; i < len(lines); i++ {
		if strings.HasPrefix(string(lines[i]), marker) {
			break
		}
		payload = append(payload, lines[i])
	}

	return bytes.Join(payload, []byte("\n")), nil
}

// splitLines splits on newlines, tolerating either line ending.
func splitLines(body []byte) [][]byte {
	lines := bytes.Split(body, []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimSuffix(line, []byte("\r"))
	}
	return lines
}
