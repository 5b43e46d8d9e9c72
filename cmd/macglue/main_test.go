package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qxcheng/macglue/pkg/config"
	"github.com/qxcheng/macglue/protocol/link/loopback"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configFile = ""
		validatePrint = false
		runStats = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateDemoConfig(t *testing.T) {
	out, err := execute(t, "validate", "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "VALID: 1 interface(s)")
	assert.Contains(t, out, "mac_addr:")
	assert.Contains(t, out, "02:00:00:00:00:01")
}

func TestValidateRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interfaces:\n  - driver: nope\n"), 0o644))
	_, err := execute(t, "validate", "-c", path)
	assert.ErrorContains(t, err, "unknown driver")
}

func TestNewDriver(t *testing.T) {
	drv, err := newDriver(config.InterfaceConfig{Name: "g0", Driver: "loopback", Loopback: config.LoopbackConfig{GMAC: true}})
	require.NoError(t, err)
	assert.Equal(t, mac.ModuleGMAC, drv.ID())
	assert.Equal(t, "g0", drv.Name())
	assert.IsType(t, &loopback.Endpoint{}, drv)

	_, err = newDriver(config.InterfaceConfig{Driver: "pic32"})
	assert.Error(t, err)
}

func TestRunSendsAndReceives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
interfaces:
  - name: lo0
    driver: loopback
  - name: lo1
    driver: loopback
    loopback:
      rx_segment_size: 256
tick_interval: 1ms
log:
  level: error
`), 0o644))

	out, err := execute(t, "run", "-c", path, "-n", "3", "-i", "2ms", "--size", "600", "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "TX.Packets")
	assert.Contains(t, out, "RX.ProcessedPackets")
}

func TestUDPDatagram(t *testing.T) {
	b, err := udpDatagram(make([]byte, 10))
	require.NoError(t, err)
	assert.Len(t, b, 20+8+10)
	assert.Equal(t, byte(0x45), b[0])
}
