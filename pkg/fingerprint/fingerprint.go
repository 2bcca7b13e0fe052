// Package fingerprint derives the stable device identifier a client sends
// when validating a license key.
package fingerprint

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const unknown = "unknown"

// Components are the host properties the fingerprint is derived from
type Components struct {
	MachineID string
	CPU       string
	RAMBytes  uint64
	Platform  string
	Arch      string
}

// HardwareInfo is the descriptive snapshot sent next to the fingerprint
type HardwareInfo struct {
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
	CPU      string `json:"cpu"`
	RAM      string `json:"ram"`
	Hostname string `json:"hostname"`
}

// Compute returns the hex SHA-256 of machineID|cpu|ram|platform|arch
func Compute(c Components) string {
	raw := strings.Join([]string{
		c.MachineID,
		c.CPU,
		strconv.FormatUint(c.RAMBytes, 10),
		c.Platform,
		c.Arch,
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Collect reads the components and hardware snapshot of this host
func Collect() (Components, HardwareInfo, error) {
	return collect(host{
		readFile: os.ReadFile,
		hostname: os.Hostname,
		goos:     runtime.GOOS,
		goarch:   runtime.GOARCH,
	})
}

// Current returns this host's fingerprint and hardware snapshot
func Current() (string, HardwareInfo, error) {
	c, info, err := Collect()
	if err != nil {
		return "", HardwareInfo{}, err
	}
	return Compute(c), info, nil
}

type host struct {
	readFile func(string) ([]byte, error)
	hostname func() (string, error)
	goos     string
	goarch   string
}

var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

func collect(h host) (Components, HardwareInfo, error) {
	hostname, err := h.hostname()
	if err != nil {
		hostname = ""
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))

	machineID := h.machineID()
	if machineID == "" {
		if hostname == "" {
			return Components{}, HardwareInfo{}, fmt.Errorf("no machine id or hostname available")
		}
		// Hosts without a machine id fall back to the hostname, which is
		// stable but not unique across cloned images.
		machineID = "host:" + hostname
	}

	cpu := h.cpuModel()
	ram := h.totalRAM()

	c := Components{
		MachineID: machineID,
		CPU:       cpu,
		RAMBytes:  ram,
		Platform:  h.goos,
		Arch:      h.goarch,
	}
	info := HardwareInfo{
		Platform: h.goos,
		Arch:     h.goarch,
		CPU:      cpu,
		RAM:      formatGB(ram),
		Hostname: hostname,
	}
	return c, info, nil
}

func (h host) machineID() string {
	for _, path := range machineIDPaths {
		data, err := h.readFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	return ""
}

func (h host) cpuModel() string {
	data, err := h.readFile("/proc/cpuinfo")
	if err != nil {
		return unknown
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return unknown
}

func (h host) totalRAM() uint64 {
	data, err := h.readFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kb, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0
			}
			return kb * 1024
		}
	}
	return 0
}

func formatGB(b uint64) string {
	const gb = 1 << 30
	return fmt.Sprintf("%d GB", (b+gb/2)/gb)
}
