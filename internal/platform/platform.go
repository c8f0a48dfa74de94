// Package platform detects facts about the host that templates can branch on.
package platform

import (
	"log/slog"
	"os"
	"os/user"
	"runtime"
	"strings"
)

// Supported operating system identifiers.
const (
	// OSLinux represents Linux operating systems
	OSLinux = "linux"
	// OSWindows represents Windows operating systems
	OSWindows = "windows"
	// OSDarwin represents macOS
	OSDarwin = "darwin"
)

// Platform holds detected platform information including the operating system,
// Linux distribution, hostname and current user.
type Platform struct {
	EnvVars  map[string]string
	OS       string
	Arch     string
	Distro   string
	Hostname string
	User     string
	IsWSL    bool
}

// Detect detects the current platform characteristics.
func Detect() *Platform {
	p := &Platform{
		OS:       detectOS(),
		Arch:     runtime.GOARCH,
		Hostname: detectHostname(),
		User:     detectUser(),
		EnvVars:  make(map[string]string),
	}

	if p.OS == OSLinux {
		p.Distro = detectDistro()
		p.IsWSL = detectWSL()
	}

	return p
}

// detectDistro returns the Linux distribution ID from /etc/os-release
// Returns values like "arch", "ubuntu", "fedora", "debian", etc.
func detectDistro() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		slog.Debug("unable to detect linux distribution",
			slog.String("file", "/etc/os-release"),
			slog.String("error", err.Error()),
			slog.String("fallback", "empty"))
		return ""
	}

	return parseOSRelease(string(data))
}

func parseOSRelease(data string) string {
	for _, line := range strings.Split(data, "\n") {
		if strings.HasPrefix(line, "ID=") {
			return strings.Trim(strings.TrimPrefix(line, "ID="), "\"")
		}
	}

	return ""
}

func detectHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		slog.Debug("unable to detect hostname",
			slog.String("error", err.Error()),
			slog.String("fallback", "empty"))
		return ""
	}

	return hostname
}

func detectUser() string {
	u, err := user.Current()
	if err != nil {
		slog.Debug("unable to detect current user",
			slog.String("error", err.Error()),
			slog.String("fallback", "empty"))
		return ""
	}

	return u.Username
}

func detectOS() string {
	switch runtime.GOOS {
	case "windows":
		return OSWindows
	case "darwin":
		return OSDarwin
	}

	// Also check OS environment variable (for cross-platform scripts)
	if strings.Contains(strings.ToLower(os.Getenv("OS")), "windows") {
		return OSWindows
	}

	return OSLinux
}

// detectWSL checks if running inside Windows Subsystem for Linux.
func detectWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}

	lower := strings.ToLower(string(data))
	return strings.Contains(lower, "microsoft") || strings.Contains(lower, "wsl")
}

// WithOS returns a copy of the Platform with the OS field overridden.
func (p *Platform) WithOS(osType string) *Platform {
	newP := *p
	newP.OS = osType
	newP.EnvVars = make(map[string]string, len(p.EnvVars))
	for k, v := range p.EnvVars {
		newP.EnvVars[k] = v
	}

	return &newP
}
