package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseBaseURL(t *testing.T) {
	assert.Equal(t, "http://host:8080", NormaliseBaseURL("http://host:8080/"))
	assert.Equal(t, "http://host:8080", NormaliseBaseURL("http://host:8080"))
	assert.Equal(t, "", NormaliseBaseURL(""))
	assert.Equal(t, "/", NormaliseBaseURL("/"), "a bare slash is left alone")
}

func TestResolveURLPath(t *testing.T) {
	assert.Equal(t, "http://host/v1/models", ResolveURLPath("http://host", "v1/models"))
	assert.Equal(t, "http://host/v1/models", ResolveURLPath("http://host", "/v1/models"))
	assert.Equal(t, "http://host/base/v1/models", ResolveURLPath("http://host/base", "v1/models"), "base path prefixes are preserved")
	assert.Equal(t, "http://other/x", ResolveURLPath("http://host", "http://other/x"), "absolute URLs pass through")
	assert.Equal(t, "v1/models", ResolveURLPath("", "v1/models"))
	assert.Equal(t, "http://host", ResolveURLPath("http://host", ""))
}
