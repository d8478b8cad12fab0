package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-session-coordinator/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("PROD", "debug", "panel", &buf)

	logger.Debug().Str("user_id", "1").Msg("session adopted")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "panel", line["context"])
	require.Equal(t, "session adopted", line["message"])
	require.Equal(t, "debug", line["level"])
}

func TestSetup_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("PROD", "chatty", "popup", &buf)

	logger.Debug().Msg("hidden")
	require.Zero(t, buf.Len())

	logger.Info().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}
