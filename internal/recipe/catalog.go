package recipe

// This file holds the recipe-agnostic constant catalogs: arch
// normalization, shell profiles, binary-to-package and library-to-package
// maps, the CUDA/driver matrix, the undo catalog, and restart triggers.
// Pure data, loaded once, no I/O.

// ArchMap normalizes `uname -m` output. Command templates use the {arch}
// placeholder resolved through this map; raw machine strings never reach
// shell syntax.
var ArchMap = map[string]string{
	"x86_64":  "x86_64",
	"amd64":   "x86_64",
	"aarch64": "aarch64",
	"arm64":   "aarch64",
	"armv7l":  "armv7l",
	"armv6l":  "armv6l",
	"i686":    "i686",
	"i386":    "i686",
	"ppc64le": "ppc64le",
	"s390x":   "s390x",
	"riscv64": "riscv64",
}

// NormalizeArch maps a raw machine string to its normalized form.
// Unknown values pass through unchanged.
func NormalizeArch(raw string) string {
	if norm, ok := ArchMap[raw]; ok {
		return norm
	}
	return raw
}

// ShellProfiles maps shell basename to the rc file shell_config steps edit.
var ShellProfiles = map[string]string{
	"bash": ".bashrc",
	"zsh":  ".zshrc",
	"fish": ".config/fish/config.fish",
	"sh":   ".profile",
}

// PMBinaries maps each native package-manager method to the binary probed
// on PATH during profile detection.
var PMBinaries = map[Method]string{
	MethodApt:    "apt-get",
	MethodDnf:    "dnf",
	MethodYum:    "yum",
	MethodApk:    "apk",
	MethodPacman: "pacman",
	MethodZypper: "zypper",
	MethodBrew:   "brew",
}

// NativeMethods are the system package managers that hold exclusive locks.
// Steps sharing one of these families are serialized by the DAG scheduler.
var NativeMethods = []Method{
	MethodApt, MethodDnf, MethodYum, MethodApk, MethodPacman, MethodZypper,
}

// MethodForFamily maps a distro family to its native package-manager method.
var MethodForFamily = map[Family]Method{
	FamilyDebian: MethodApt,
	FamilyRHEL:   MethodDnf,
	FamilyAlpine: MethodApk,
	FamilyArch:   MethodPacman,
	FamilySuse:   MethodZypper,
	FamilyMacOS:  MethodBrew,
}

// FamilyForMethod is the inverse of MethodForFamily for native methods,
// with yum folded into the rhel family.
var FamilyForMethod = map[Method]Family{
	MethodApt:    FamilyDebian,
	MethodDnf:    FamilyRHEL,
	MethodYum:    FamilyRHEL,
	MethodApk:    FamilyAlpine,
	MethodPacman: FamilyArch,
	MethodZypper: FamilySuse,
	MethodBrew:   FamilyMacOS,
}

// LanguageMethodBinaries maps language package-manager methods to the
// implementor binary probed for the language-PM-on-PATH availability gate.
var LanguageMethodBinaries = map[Method]string{
	MethodPip:   "pip3",
	MethodPipx:  "pipx",
	MethodNpm:   "npm",
	MethodCargo: "cargo",
	MethodGo:    "go",
}

// InstallCommandForFamily yields the batched package install argv prefix
// per family. The package list is appended verbatim.
var InstallCommandForFamily = map[Family][]string{
	FamilyDebian: {"apt-get", "install", "-y"},
	FamilyRHEL:   {"dnf", "install", "-y"},
	FamilyAlpine: {"apk", "add", "--no-cache"},
	FamilyArch:   {"pacman", "-S", "--noconfirm"},
	FamilySuse:   {"zypper", "--non-interactive", "install"},
	FamilyMacOS:  {"brew", "install"},
}

// PackagesNeedSudo reports whether the batched install for a family runs
// under sudo. Homebrew refuses to run as root.
var PackagesNeedSudo = map[Family]bool{
	FamilyDebian: true,
	FamilyRHEL:   true,
	FamilyAlpine: true,
	FamilyArch:   true,
	FamilySuse:   true,
	FamilyMacOS:  false,
}

// KnownPackages maps a binary name to the OS packages providing it per
// family. Used when a requires.binaries entry has no recipe of its own.
var KnownPackages = map[string]map[Family][]string{
	"gcc": {
		FamilyDebian: {"build-essential"},
		FamilyRHEL:   {"gcc", "gcc-c++", "make"},
		FamilyAlpine: {"build-base"},
		FamilyArch:   {"base-devel"},
		FamilySuse:   {"gcc", "gcc-c++", "make"},
	},
	"cc": {
		FamilyDebian: {"build-essential"},
		FamilyRHEL:   {"gcc"},
		FamilyAlpine: {"build-base"},
		FamilyArch:   {"base-devel"},
		FamilySuse:   {"gcc"},
	},
	"make": {
		FamilyDebian: {"make"},
		FamilyRHEL:   {"make"},
		FamilyAlpine: {"make"},
		FamilyArch:   {"make"},
		FamilySuse:   {"make"},
	},
	"git": {
		FamilyDebian: {"git"},
		FamilyRHEL:   {"git"},
		FamilyAlpine: {"git"},
		FamilyArch:   {"git"},
		FamilySuse:   {"git"},
		FamilyMacOS:  {"git"},
	},
	"curl": {
		FamilyDebian: {"curl"},
		FamilyRHEL:   {"curl"},
		FamilyAlpine: {"curl"},
		FamilyArch:   {"curl"},
		FamilySuse:   {"curl"},
	},
	"pkg-config": {
		FamilyDebian: {"pkg-config"},
		FamilyRHEL:   {"pkgconf-pkg-config"},
		FamilyAlpine: {"pkgconf"},
		FamilyArch:   {"pkgconf"},
		FamilySuse:   {"pkg-config"},
		FamilyMacOS:  {"pkg-config"},
	},
}

// LibToPackageMap maps a library name to the dev packages providing its
// headers per family.
var LibToPackageMap = map[string]map[Family][]string{
	"openssl": {
		FamilyDebian: {"libssl-dev"},
		FamilyRHEL:   {"openssl-devel"},
		FamilyAlpine: {"openssl-dev"},
		FamilyArch:   {"openssl"},
		FamilySuse:   {"libopenssl-devel"},
		FamilyMacOS:  {"openssl@3"},
	},
	"zlib": {
		FamilyDebian: {"zlib1g-dev"},
		FamilyRHEL:   {"zlib-devel"},
		FamilyAlpine: {"zlib-dev"},
		FamilyArch:   {"zlib"},
		FamilySuse:   {"zlib-devel"},
	},
	"ffi": {
		FamilyDebian: {"libffi-dev"},
		FamilyRHEL:   {"libffi-devel"},
		FamilyAlpine: {"libffi-dev"},
		FamilyArch:   {"libffi"},
		FamilySuse:   {"libffi-devel"},
	},
	"sqlite3": {
		FamilyDebian: {"libsqlite3-dev"},
		FamilyRHEL:   {"sqlite-devel"},
		FamilyAlpine: {"sqlite-dev"},
		FamilyArch:   {"sqlite"},
		FamilySuse:   {"sqlite3-devel"},
	},
}

// CUDADriverMatrix maps a CUDA toolkit minor series to the minimum NVIDIA
// driver version that supports it on Linux.
var CUDADriverMatrix = map[string]string{
	"11.8": "450.80.02",
	"12.0": "525.60.13",
	"12.1": "525.60.13",
	"12.2": "535.54.03",
	"12.4": "550.54.14",
	"12.6": "560.28.03",
}

// UndoCatalog provides rollback command templates per method for recipes
// that declare no explicit rollback. {tool} is replaced with the tool id.
var UndoCatalog = map[Method]Command{
	MethodApt:    {"apt-get", "remove", "-y", "{tool}"},
	MethodDnf:    {"dnf", "remove", "-y", "{tool}"},
	MethodYum:    {"yum", "remove", "-y", "{tool}"},
	MethodApk:    {"apk", "del", "{tool}"},
	MethodPacman: {"pacman", "-R", "--noconfirm", "{tool}"},
	MethodZypper: {"zypper", "--non-interactive", "remove", "{tool}"},
	MethodBrew:   {"brew", "uninstall", "{tool}"},
	MethodSnap:   {"snap", "remove", "{tool}"},
	MethodPip:    {"pip3", "uninstall", "-y", "{tool}"},
	MethodPipx:   {"pipx", "uninstall", "{tool}"},
	MethodNpm:    {"npm", "uninstall", "-g", "{tool}"},
	MethodCargo:  {"cargo", "uninstall", "{tool}"},
}

// RestartTriggers maps observable install effects to the restart
// requirement they imply when a recipe does not declare one.
var RestartTriggers = map[string]Restart{
	"path_update":    RestartShell,
	"group_change":   RestartSession,
	"kernel_module":  RestartSystem,
	"service_enable": RestartNone,
}
