package cli

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	prev := version
	t.Cleanup(func() { version = prev })
	version = v
}

func TestVersionCmd(t *testing.T) {
	withVersion(t, "dev")
	SetVersion("1.4.0")

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fpkb version 1.4.0")
	assert.Contains(t, out, runtime.Version())
}

func TestVersionCmd_JSON(t *testing.T) {
	withVersion(t, "1.4.0")

	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info buildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestSetVersion_IgnoresEmpty(t *testing.T) {
	withVersion(t, "dev")

	SetVersion("")
	assert.Equal(t, "dev", version)
}
