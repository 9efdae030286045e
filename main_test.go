package meter

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Keep every test on the bundled rate table; no background refresh.
	SetOffline(true)
	os.Exit(m.Run())
}
