package testlog

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Start silences transport logging for a test unless WIRECTL_TEST_LOG is
// set, in which case it switches to debug output tagged with the test name.
func Start(t *testing.T) {
	t.Helper()
	if os.Getenv("WIRECTL_TEST_LOG") == "" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Debug().Str("test", t.Name()).Msg("start")
}
