package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorShape(t *testing.T) {
	raw, err := json.Marshal(NewError("INVALID_CURSOR", "question index out of range"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","code":"INVALID_CURSOR","error":"question index out of range"}`, string(raw))
}
