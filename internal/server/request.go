package server

import (
	"errors"
	"strconv"
	"strings"
)

var (
	errMalformedHead    = errors.New("malformed request head")
	errHeaderTooLarge   = errors.New("request head exceeds configured limit")
	errBodyTooLarge     = errors.New("request body exceeds configured limit")
	errBadContentLength = errors.New("invalid content-length")
)

// httpRequest is one parsed inbound request. Header names are lower-cased at
// parse time so lookups are case-insensitive.
type httpRequest struct {
	Method  string
	Path    string
	Proto   string
	Headers map[string]string
	Body    []byte
}

func (r *httpRequest) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// ContentLength returns the declared body size, zero when the header is
// absent, or an error when the value does not parse.
func (r *httpRequest) ContentLength() (int, error) {
	raw := r.Header("content-length")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errBadContentLength
	}
	return n, nil
}

// parseHead parses the request head (everything before the blank line) into
// method, target and headers. The request line must carry all three tokens;
// "GET\r\n" alone is malformed.
func parseHead(head []byte) (*httpRequest, error) {
	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 {
		return nil, errMalformedHead
	}

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 {
		return nil, errMalformedHead
	}

	method, target, proto := parts[0], parts[1], parts[2]
	if !isValidMethod(method) {
		return nil, errMalformedHead
	}
	if target == "" || (target[0] != '/' && target != "*") {
		return nil, errMalformedHead
	}
	if !strings.HasPrefix(proto, "HTTP/") {
		return nil, errMalformedHead
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			return nil, errMalformedHead
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers[key] = value
	}

	// Query strings are not part of the routing table; strip them here
	path := target
	if q := strings.Index(path, "?"); q >= 0 {
		path = path[:q]
	}

	return &httpRequest{
		Method:  method,
		Path:    path,
		Proto:   proto,
		Headers: headers,
	}, nil
}

func isValidMethod(method string) bool {
	if method == "" {
		return false
	}
	for i := 0; i < len(method); i++ {
		if method[i] < 'A' || method[i] > 'Z' {
			return false
		}
	}
	return true
}
