// Package sysinfo detects the target machine profile used by the resolver.
//
// Detection runs in two tiers. The fast tier (Detect) reads /etc/os-release,
// normalizes the machine architecture, and probes PATH for package-manager
// binaries; it is cheap enough to run on every call. The deep tier
// (DeepProbe) runs lazily and caches per session: GPU vendor, CUDA toolkit,
// kernel version, disk free, and toolchain presence.
package sysinfo

import (
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

// Profile is the fast-tier description of the target machine. Immutable
// per session once detected.
type Profile struct {
	OS            string        `json:"os"`             // linux|macos|windows
	Distro        string        `json:"distro"`         // ubuntu, fedora, alpine, ...
	DistroFamily  recipe.Family `json:"distro_family"`  // debian|rhel|alpine|arch|suse|macos
	DistroVersion string        `json:"distro_version"` // e.g. "22.04"
	Arch          string        `json:"arch"`           // normalized: x86_64, aarch64, ...

	// PrimaryPM is the native package manager, empty when undetermined.
	// The resolver degrades to _default-only when empty.
	PrimaryPM recipe.Method `json:"primary_pm,omitempty"`

	SnapAvailable bool `json:"snap_available"`
	HasSystemd    bool `json:"has_systemd"`
	InContainer   bool `json:"in_container"`
	WritableRoot  bool `json:"writable_rootfs"`
	IsRoot        bool `json:"is_root"`

	// PMBinariesOnPath is the set of package-manager and language-PM
	// binaries found on PATH (apt-get, dnf, brew, pip3, cargo, ...).
	PMBinariesOnPath map[string]bool `json:"pm_binaries_on_path"`
}

// OnPath reports whether the named binary was found on PATH during
// detection.
func (p *Profile) OnPath(binary string) bool {
	return p.PMBinariesOnPath[binary]
}

// DeepProfile holds the lazily detected capabilities. Cached per session
// under the state root (tool_install_cache.json).
type DeepProfile struct {
	GPUVendor     string `json:"gpu_vendor,omitempty"` // nvidia|amd|intel|""
	GPUModel      string `json:"gpu_model,omitempty"`
	CUDAVersion   string `json:"cuda_version,omitempty"` // toolkit version, "" if absent
	DriverVersion string `json:"driver_version,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
	DiskFreeBytes uint64 `json:"disk_free_bytes,omitempty"`
	HasCCompiler  bool   `json:"has_c_compiler"`
	NodeVersion   string `json:"node_version,omitempty"`
	PythonVersion string `json:"python_version,omitempty"`
}

// HasCUDA reports whether a usable CUDA toolkit was detected.
func (d *DeepProfile) HasCUDA() bool {
	return d.CUDAVersion != ""
}
