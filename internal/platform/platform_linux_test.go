//go:build linux

package platform

import (
	"os"
	"runtime"
	"strings"
	"testing"
)

func TestDetect_Linux(t *testing.T) {
	t.Parallel()

	p := Detect()

	if p.OS != OSLinux || detectOS() != OSLinux {
		t.Errorf("OS = %q, want %q", p.OS, OSLinux)
	}
	if p.Arch != runtime.GOARCH {
		t.Errorf("Arch = %q, want %q", p.Arch, runtime.GOARCH)
	}
	if p.Hostname == "" || p.User == "" {
		t.Errorf("Hostname = %q, User = %q; templates expect both", p.Hostname, p.User)
	}

	if _, err := os.Stat("/etc/os-release"); err == nil && p.Distro == "" {
		t.Error("Distro is empty although /etc/os-release exists")
	}
}

func TestDetectWSL_Linux(t *testing.T) {
	t.Parallel()

	data, err := os.ReadFile("/proc/version")
	version := strings.ToLower(string(data))
	marked := err == nil && (strings.Contains(version, "microsoft") || strings.Contains(version, "wsl"))

	if got := detectWSL(); got && !marked {
		t.Errorf("detectWSL() = true, /proc/version = %q", version)
	}
}
