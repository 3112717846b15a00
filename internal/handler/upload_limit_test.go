package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatUploadLimit(t *testing.T) {
	assert.Equal(t, "0MB", formatUploadLimit(0))
	assert.Equal(t, "1MB", formatUploadLimit(10))
	assert.Equal(t, "500MB", formatUploadLimit(500*1024*1024))
	assert.Equal(t, "1.5GB", formatUploadLimit(1536*1024*1024))
}
