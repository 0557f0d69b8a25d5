package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStructuralClassification(t *testing.T) {
	assert.True(t, IsStructural(NewUnsupportedFormatError("d", nil)))
	assert.True(t, IsStructural(NewEmptyImageError("d")))
	assert.True(t, IsStructural(NewUnreadableImageError("d")))
	assert.False(t, IsStructural(NewEngineUnavailableError("tesseract", nil)))
	assert.False(t, IsStructural(NewTimeoutExceededError("d", time.Minute)))
	assert.False(t, IsStructural(fmt.Errorf("plain error")))
}

func TestCodeOfWrappedError(t *testing.T) {
	inner := NewEngineUnavailableError("remote", fmt.Errorf("connection refused"))
	wrapped := fmt.Errorf("region 3: %w", inner)

	assert.Equal(t, ErrorEngineUnavailable, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, ErrorEngineUnavailable))
	assert.False(t, IsCode(wrapped, ErrorTimeoutExceeded))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
}

func TestErrorStringCarriesCode(t *testing.T) {
	err := NewUnreadableImageError("doc-9")
	assert.Contains(t, err.Error(), "UNREADABLE_IMAGE")

	withCause := NewUnsupportedFormatError("doc-9", fmt.Errorf("bad magic"))
	assert.Contains(t, withCause.Error(), "caused by: bad magic")
}

func TestToMap(t *testing.T) {
	err := NewStorageFailedError("job-1", fmt.Errorf("connection reset"))
	m := err.ToMap()
	assert.Equal(t, "STORAGE_FAILED", m["error_code"])
	assert.Equal(t, "job-1", m["job_id"])
	assert.Equal(t, "connection reset", m["cause"])
}
