package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFull(t *testing.T) {
	full := Full()
	assert.True(t, strings.HasPrefix(full, Version))
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "jarvis/"+Version, UserAgent())
}
