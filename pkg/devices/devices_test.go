package devices

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUevent(t *testing.T, root, class, name, body string) {
	t.Helper()
	dir := filepath.Join(root, "class", class, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte(body), 0o644))
}

func TestParseUevent(t *testing.T) {
	rec := ParseUevent("POWER_SUPPLY_NAME=BAT0\nPOWER_SUPPLY_TYPE=Battery\ngarbage\nPOWER_SUPPLY_MODEL_NAME=5B10W=13\n")
	assert.Equal(t, "BAT0", rec.Get("POWER_SUPPLY_NAME"))
	assert.Equal(t, "5B10W=13", rec.Get("POWER_SUPPLY_MODEL_NAME"))
	assert.Len(t, rec, 3)
}

func TestPowerSupplies(t *testing.T) {
	root := t.TempDir()
	writeUevent(t, root, "power_supply", "BAT0", "POWER_SUPPLY_NAME=BAT0\nPOWER_SUPPLY_TYPE=Battery\n")
	writeUevent(t, root, "power_supply", "AC", "POWER_SUPPLY_NAME=AC\nPOWER_SUPPLY_TYPE=Mains\n")

	recs, err := PowerSupplies(root)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "AC", recs[0].Get("POWER_SUPPLY_NAME"))
	assert.Equal(t, filepath.Join(root, "class", "power_supply", "BAT0"), recs[1].Get("_PATH"))
	assert.True(t, HasBattery(recs))
	assert.False(t, HasBattery(recs[:1]))
}

func TestClassMissing(t *testing.T) {
	recs, err := Class(t.TempDir(), "power_supply")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
