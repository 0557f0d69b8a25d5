package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobPayloadBase64Buffer(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	data := fmt.Sprintf(`{"jobId":"j1","filename":"scan.png","fileBuffer":%q}`,
		base64.StdEncoding.EncodeToString(raw))

	var p JobPayload
	require.NoError(t, json.Unmarshal([]byte(data), &p))
	assert.Equal(t, "j1", p.JobID)
	assert.Equal(t, raw, p.FileBuffer)
}

func TestJobPayloadNodeBufferObject(t *testing.T) {
	data := `{"jobId":"j2","filename":"scan.png","fileBuffer":{"type":"Buffer","data":[1,2,255]}}`

	var p JobPayload
	require.NoError(t, json.Unmarshal([]byte(data), &p))
	assert.Equal(t, []byte{1, 2, 255}, p.FileBuffer)
}

func TestJobPayloadMissingBuffer(t *testing.T) {
	var p JobPayload
	require.NoError(t, json.Unmarshal([]byte(`{"jobId":"j3","filename":"a.png"}`), &p))
	assert.Nil(t, p.FileBuffer)
}

func TestJobPayloadRejectsBadBuffer(t *testing.T) {
	var p JobPayload
	assert.Error(t, json.Unmarshal([]byte(`{"fileBuffer":42}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"fileBuffer":"not-base64!!"}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"fileBuffer":{"type":"NotBuffer","data":[]}}`), &p))
}
