package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatOmitsEmptyFields(t *testing.T) {
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(Format(Fields{Service: "shop-service", OrderID: "o1", Step: "place_order"})), &out))

	assert.Equal(t, "shop-service", out["service"])
	assert.Equal(t, "o1", out["order_id"])
	assert.NotEmpty(t, out["timestamp"])
	_, hasSession := out["session_id"]
	assert.False(t, hasSession)
}

func TestLogWritesThroughStandardLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	Log(Err("shop-service", "outbox_publish", errors.New("broker down")))

	assert.Contains(t, buf.String(), `"error":"broker down"`)
	assert.Contains(t, buf.String(), `"status":"error"`)
}
