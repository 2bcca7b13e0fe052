package fingerprint

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeHost(files map[string]string, hostname string) host {
	return host{
		readFile: func(path string) ([]byte, error) {
			data, ok := files[path]
			if !ok {
				return nil, os.ErrNotExist
			}
			return []byte(data), nil
		},
		hostname: func() (string, error) {
			if hostname == "" {
				return "", errors.New("no hostname")
			}
			return hostname, nil
		},
		goos:   "linux",
		goarch: "amd64",
	}
}

const cpuinfo = `processor	: 0
vendor_id	: GenuineIntel
model name	: Intel(R) Xeon(R) CPU @ 2.20GHz
processor	: 1
model name	: Intel(R) Xeon(R) CPU @ 2.20GHz
`

const meminfo = `MemTotal:       16303892 kB
MemFree:         1234567 kB
`

func TestCompute(t *testing.T) {
	base := Components{MachineID: "abc", CPU: "cpu", RAMBytes: 1024, Platform: "linux", Arch: "amd64"}

	fp := Compute(base)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Compute(base))

	variants := []Components{
		{MachineID: "abd", CPU: "cpu", RAMBytes: 1024, Platform: "linux", Arch: "amd64"},
		{MachineID: "abc", CPU: "cpu2", RAMBytes: 1024, Platform: "linux", Arch: "amd64"},
		{MachineID: "abc", CPU: "cpu", RAMBytes: 2048, Platform: "linux", Arch: "amd64"},
		{MachineID: "abc", CPU: "cpu", RAMBytes: 1024, Platform: "darwin", Arch: "amd64"},
		{MachineID: "abc", CPU: "cpu", RAMBytes: 1024, Platform: "linux", Arch: "arm64"},
	}
	for _, v := range variants {
		assert.NotEqual(t, fp, Compute(v), "%+v", v)
	}
}

func TestCollect_FromProcFiles(t *testing.T) {
	h := fakeHost(map[string]string{
		"/etc/machine-id": "0123456789abcdef\n",
		"/proc/cpuinfo":   cpuinfo,
		"/proc/meminfo":   meminfo,
	}, "Build-Box")

	c, info, err := collect(h)
	require.NoError(t, err)

	assert.Equal(t, "0123456789abcdef", c.MachineID)
	assert.Equal(t, "Intel(R) Xeon(R) CPU @ 2.20GHz", c.CPU)
	assert.Equal(t, uint64(16303892*1024), c.RAMBytes)
	assert.Equal(t, "linux", c.Platform)

	assert.Equal(t, "16 GB", info.RAM)
	assert.Equal(t, "build-box", info.Hostname)
	assert.Equal(t, "amd64", info.Arch)
}

func TestCollect_Fallbacks(t *testing.T) {
	h := fakeHost(map[string]string{
		"/var/lib/dbus/machine-id": "dbus-id",
	}, "")
	c, info, err := collect(h)
	require.NoError(t, err)
	assert.Equal(t, "dbus-id", c.MachineID)
	assert.Equal(t, unknown, c.CPU)
	assert.Zero(t, c.RAMBytes)
	assert.Equal(t, "0 GB", info.RAM)

	c, _, err = collect(fakeHost(map[string]string{"/etc/machine-id": "  \n"}, "node-7"))
	require.NoError(t, err)
	assert.Equal(t, "host:node-7", c.MachineID)

	_, _, err = collect(fakeHost(nil, ""))
	assert.Error(t, err)
}
