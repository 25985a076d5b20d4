package sysinfo

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"runtime"
	"strings"

	sdutil "github.com/coreos/go-systemd/v22/util"
	"golang.org/x/sys/unix"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

// OSRelease contains parsed values from /etc/os-release.
type OSRelease struct {
	ID              string   // canonical distro identifier (e.g. "ubuntu")
	IDLike          []string // parent/similar distros (e.g. ["debian"])
	VersionID       string   // version number (e.g. "22.04")
	VersionCodename string   // codename (e.g. "jammy")
}

// distroToFamily maps distro IDs to their package ecosystem family.
var distroToFamily = map[string]recipe.Family{
	// Debian family (apt)
	"debian": recipe.FamilyDebian, "ubuntu": recipe.FamilyDebian,
	"linuxmint": recipe.FamilyDebian, "pop": recipe.FamilyDebian,
	"elementary": recipe.FamilyDebian, "zorin": recipe.FamilyDebian,
	// RHEL family (dnf)
	"fedora": recipe.FamilyRHEL, "rhel": recipe.FamilyRHEL,
	"centos": recipe.FamilyRHEL, "rocky": recipe.FamilyRHEL,
	"almalinux": recipe.FamilyRHEL, "ol": recipe.FamilyRHEL,
	// Arch family (pacman)
	"arch": recipe.FamilyArch, "manjaro": recipe.FamilyArch,
	"endeavouros": recipe.FamilyArch,
	// Alpine (apk)
	"alpine": recipe.FamilyAlpine,
	// SUSE family (zypper)
	"opensuse":            recipe.FamilySuse,
	"opensuse-leap":       recipe.FamilySuse,
	"opensuse-tumbleweed": recipe.FamilySuse,
	"sles":                recipe.FamilySuse,
}

// Detector performs profile detection. Probe functions are fields so tests
// can substitute fakes without touching the filesystem.
type Detector struct {
	OSReleasePath string
	LookPath      func(string) (string, error)
	Uname         func() (machine string, err error)
	IsSystemd     func() bool
	Logger        log.Logger
}

// NewDetector returns a Detector wired to the real system.
func NewDetector() *Detector {
	return &Detector{
		OSReleasePath: "/etc/os-release",
		LookPath:      exec.LookPath,
		Uname:         unameMachine,
		IsSystemd:     sdutil.IsRunningSystemd,
		Logger:        log.Default(),
	}
}

// Detect runs fast-tier detection. It fails soft: fields that cannot be
// determined stay at their zero value rather than aborting.
func (d *Detector) Detect() *Profile {
	p := &Profile{
		PMBinariesOnPath: make(map[string]bool),
	}

	switch runtime.GOOS {
	case "darwin":
		p.OS = "macos"
		p.Distro = "macos"
		p.DistroFamily = recipe.FamilyMacOS
	case "windows":
		p.OS = "windows"
	default:
		p.OS = "linux"
	}

	if machine, err := d.Uname(); err == nil {
		p.Arch = recipe.NormalizeArch(machine)
	} else {
		p.Arch = recipe.NormalizeArch(runtime.GOARCH)
	}

	if p.OS == "linux" {
		rel, err := ParseOSRelease(d.OSReleasePath)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				d.Logger.Warn("failed to parse os-release", "error", err)
			}
		} else {
			p.Distro = rel.ID
			p.DistroVersion = rel.VersionID
			if fam, ok := MapDistroToFamily(rel.ID, rel.IDLike); ok {
				p.DistroFamily = fam
			}
		}
	}

	// Probe PATH for native and language package managers.
	for _, bin := range pmProbeList() {
		if _, err := d.LookPath(bin); err == nil {
			p.PMBinariesOnPath[bin] = true
		}
	}

	p.PrimaryPM = d.primaryPM(p)
	p.SnapAvailable = p.OnPath("snap")
	p.HasSystemd = p.OS == "linux" && d.IsSystemd()
	p.InContainer = detectContainer()
	p.IsRoot = os.Geteuid() == 0
	p.WritableRoot = unix.Access("/usr/local", unix.W_OK) == nil || p.IsRoot

	return p
}

// primaryPM picks the native package manager: the family's canonical PM if
// its binary is on PATH, otherwise the first native PM binary found.
func (d *Detector) primaryPM(p *Profile) recipe.Method {
	if p.DistroFamily != "" {
		m := recipe.MethodForFamily[p.DistroFamily]
		if bin, ok := recipe.PMBinaries[m]; ok && p.OnPath(bin) {
			return m
		}
		// Older RHEL installs carry yum but not dnf.
		if m == recipe.MethodDnf && p.OnPath("yum") {
			return recipe.MethodYum
		}
	}
	for _, m := range recipe.NativeMethods {
		if p.OnPath(recipe.PMBinaries[m]) {
			return m
		}
	}
	if p.OnPath("brew") {
		return recipe.MethodBrew
	}
	return ""
}

// pmProbeList returns every binary the fast tier probes on PATH.
func pmProbeList() []string {
	var bins []string
	for _, bin := range recipe.PMBinaries {
		bins = append(bins, bin)
	}
	for _, bin := range recipe.LanguageMethodBinaries {
		bins = append(bins, bin)
	}
	bins = append(bins, "snap", "git", "which")
	return bins
}

// ParseOSRelease parses the /etc/os-release file format.
func ParseOSRelease(path string) (*OSRelease, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	release := &OSRelease{}
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"'`)

		switch key {
		case "ID":
			release.ID = value
		case "ID_LIKE":
			release.IDLike = strings.Fields(value)
		case "VERSION_ID":
			release.VersionID = value
		case "VERSION_CODENAME":
			release.VersionCodename = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return release, nil
}

// MapDistroToFamily maps a distro ID to its family, falling back to the
// ID_LIKE chain.
func MapDistroToFamily(id string, idLike []string) (recipe.Family, bool) {
	if family, ok := distroToFamily[id]; ok {
		return family, true
	}
	for _, like := range idLike {
		if family, ok := distroToFamily[like]; ok {
			return family, true
		}
	}
	return "", false
}

// unameMachine returns the raw machine string from uname(2).
func unameMachine() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uts.Machine[:]), nil
}

// detectContainer checks the usual container markers.
func detectContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if _, err := os.Stat("/run/.containerenv"); err == nil {
		return true
	}
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		s := string(data)
		if strings.Contains(s, "docker") || strings.Contains(s, "kubepods") ||
			strings.Contains(s, "containerd") || strings.Contains(s, "lxc") {
			return true
		}
	}
	return false
}
