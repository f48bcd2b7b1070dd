package commands

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerURL_FlagWins(t *testing.T) {
	assert.Equal(t, "http://example.com:9090", serverURL("http://example.com:9090"))
	assert.Equal(t, "http://example.com:9090", serverURL("http://example.com:9090/"))
}

func TestServerURL_DefaultsFromConfig(t *testing.T) {
	// No config file on disk: defaults apply.
	assert.Equal(t, "http://127.0.0.1:8080", serverURL(""))
}

func TestExcerptLine_Short(t *testing.T) {
	assert.Equal(t, "hello world", excerptLine("hello world"))
}

func TestExcerptLine_FlattensNewlines(t *testing.T) {
	assert.Equal(t, "line one line two", excerptLine("line one\nline two"))
}

func TestExcerptLine_Truncates(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := excerptLine(long)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, 80, len([]rune(got))-1)
}
