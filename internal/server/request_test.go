package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHead_Valid(t *testing.T) {
	head := []byte("POST /v1/chat/completions HTTP/1.1\r\nHost: localhost\r\nContent-Type: application/json\r\nContent-Length: 42")

	req, err := parseHead(head)
	require.NoError(t, err)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/v1/chat/completions", req.Path)
	assert.Equal(t, "HTTP/1.1", req.Proto)
	assert.Equal(t, "application/json", req.Header("Content-Type"))

	length, err := req.ContentLength()
	require.NoError(t, err)
	assert.Equal(t, 42, length)
}

func TestParseHead_StripsQueryString(t *testing.T) {
	req, err := parseHead([]byte("GET /v1/models?limit=5 HTTP/1.1\r\nHost: localhost"))
	require.NoError(t, err)
	assert.Equal(t, "/v1/models", req.Path)
}

func TestParseHead_HeadersAreCaseInsensitive(t *testing.T) {
	req, err := parseHead([]byte("GET / HTTP/1.1\r\nAUTHORIZATION: Bearer abc"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", req.Header("authorization"))
	assert.Equal(t, "Bearer abc", req.Header("Authorization"))
}

func TestParseHead_Malformed(t *testing.T) {
	cases := map[string]string{
		"method only":        "GET",
		"missing proto":      "GET /health",
		"lowercase method":   "get /health HTTP/1.1",
		"relative target":    "GET health HTTP/1.1",
		"bad proto":          "GET /health FTP/1.1",
		"header without key": "GET /health HTTP/1.1\r\n: value",
	}

	for name, head := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseHead([]byte(head))
			assert.ErrorIs(t, err, errMalformedHead)
		})
	}
}

func TestContentLength_Invalid(t *testing.T) {
	req, err := parseHead([]byte("POST / HTTP/1.1\r\nContent-Length: banana"))
	require.NoError(t, err)

	_, err = req.ContentLength()
	assert.ErrorIs(t, err, errBadContentLength)
}

func TestContentLength_Negative(t *testing.T) {
	req, err := parseHead([]byte("POST / HTTP/1.1\r\nContent-Length: -5"))
	require.NoError(t, err)

	_, err = req.ContentLength()
	assert.ErrorIs(t, err, errBadContentLength)
}
