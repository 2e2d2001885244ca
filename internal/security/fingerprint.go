package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// DeviceFingerprint represents device identification information
type DeviceFingerprint struct {
	Fingerprint string    `json:"fingerprint"`
	Hostname    string    `json:"hostname"`
	MACAddress  string    `json:"mac_address"`
	CPUID       string    `json:"cpu_id"`
	OS          string    `json:"os"`
	Platform    string    `json:"platform"`
	GeneratedAt time.Time `json:"generated_at"`
}

// FingerprintManager handles device fingerprinting operations
type FingerprintManager struct {
	cache         *DeviceFingerprint
	cacheMutex    sync.RWMutex
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// NewFingerprintManager creates a new fingerprint manager with caching
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{
		cacheDuration: 1 * time.Hour,
	}
}

// GetMACAddress retrieves the primary network interface MAC address
func (fm *FingerprintManager) GetMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	// Look for the first non-loopback, up interface with a MAC address
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		if len(iface.HardwareAddr) > 0 {
			mac := iface.HardwareAddr.String()
			if mac != "" && mac != "00:00:00:00:00:00" {
				return mac, nil
			}
		}
	}

	// Fallback: use any interface with MAC address
	for _, iface := range interfaces {
		if len(iface.HardwareAddr) > 0 {
			mac := iface.HardwareAddr.String()
			if mac != "" && mac != "00:00:00:00:00:00" {
				slog.Warn("Using fallback MAC address",
					slog.String("interface", iface.Name),
				)
				return mac, nil
			}
		}
	}

	return "", fmt.Errorf("no valid MAC address found")
}

// GetHostname retrieves the machine hostname
func (fm *FingerprintManager) GetHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", fmt.Errorf("hostname is empty")
	}

	return hostname, nil
}

// GetCPUID retrieves CPU identification information (OS-specific)
func (fm *FingerprintManager) GetCPUID() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return fm.getCPUIDDarwin()
	case "linux":
		return fm.getCPUIDLinux()
	default:
		cpuInfo := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
		return hashShort(cpuInfo), nil
	}
}

// getCPUIDDarwin gets CPU information on macOS systems
func (fm *FingerprintManager) getCPUIDDarwin() (string, error) {
	cpuInfo := fmt.Sprintf("darwin-%s", runtime.GOARCH)

	if procType := os.Getenv("HOSTTYPE"); procType != "" {
		cpuInfo = fmt.Sprintf("darwin-%s-%s", runtime.GOARCH, procType)
	}

	return hashShort(cpuInfo), nil
}

// getCPUIDLinux gets CPU information on Linux systems
func (fm *FingerprintManager) getCPUIDLinux() (string, error) {
	cpuData, err := os.ReadFile("/proc/cpuinfo")
	if err == nil {
		lines := strings.Split(string(cpuData), "\n")
		for _, line := range lines {
			if strings.HasPrefix(line, "model name") || strings.HasPrefix(line, "cpu family") {
				return hashShort(line), nil
			}
		}
	}

	return hashShort(fmt.Sprintf("linux-%s", runtime.GOARCH)), nil
}

// GenerateFingerprint creates a device fingerprint by combining hardware factors
func (fm *FingerprintManager) GenerateFingerprint() (*DeviceFingerprint, error) {
	fm.cacheMutex.RLock()
	if fm.cache != nil && time.Now().Before(fm.cacheExpiry) {
		cached := *fm.cache
		fm.cacheMutex.RUnlock()
		return &cached, nil
	}
	fm.cacheMutex.RUnlock()

	macAddr, err := fm.GetMACAddress()
	if err != nil {
		macAddr = "unknown-mac"
		slog.Warn("Failed to get MAC address, using fallback",
			slog.String("error", err.Error()),
		)
	}

	hostname, err := fm.GetHostname()
	if err != nil {
		hostname = "unknown-host"
		slog.Warn("Failed to get hostname, using fallback",
			slog.String("error", err.Error()),
		)
	}

	cpuID, err := fm.GetCPUID()
	if err != nil {
		cpuID = "unknown-cpu"
	}

	factors := []string{
		macAddr,
		hostname,
		cpuID,
		runtime.GOOS,
		runtime.GOARCH,
	}

	combinedData := strings.Join(factors, "|")
	hash := sha256.Sum256([]byte(combinedData))
	fingerprint := hex.EncodeToString(hash[:])

	deviceFingerprint := &DeviceFingerprint{
		Fingerprint: fingerprint,
		Hostname:    hostname,
		MACAddress:  macAddr,
		CPUID:       cpuID,
		OS:          runtime.GOOS,
		Platform:    runtime.GOARCH,
		GeneratedAt: time.Now(),
	}

	fm.cacheMutex.Lock()
	fm.cache = deviceFingerprint
	fm.cacheExpiry = time.Now().Add(fm.cacheDuration)
	fm.cacheMutex.Unlock()

	return deviceFingerprint, nil
}

// ValidateFingerprint compares current device fingerprint with stored one
func (fm *FingerprintManager) ValidateFingerprint(storedFingerprint string) (bool, error) {
	current, err := fm.GenerateFingerprint()
	if err != nil {
		return false, fmt.Errorf("failed to generate current fingerprint: %w", err)
	}

	return current.Fingerprint == storedFingerprint, nil
}

// ClearCache clears the cached fingerprint
func (fm *FingerprintManager) ClearCache() {
	fm.cacheMutex.Lock()
	defer fm.cacheMutex.Unlock()

	fm.cache = nil
	fm.cacheExpiry = time.Time{}
}

func hashShort(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:8])
}
