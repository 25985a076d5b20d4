package sysinfo

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/config"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
)

// probeCacheRecord is the on-disk shape of the deep-tier cache.
// Readers ignore unknown fields so the schema can grow.
type probeCacheRecord struct {
	DetectedAt time.Time   `json:"detected_at"`
	Profile    DeepProfile `json:"profile"`
}

// DeepDetector runs the deep-tier probes. Probes are fields so tests can
// substitute fakes. Results are cached in memory per detector and on disk
// under the state root.
type DeepDetector struct {
	CachePath string
	TTL       time.Duration
	LookPath  func(string) (string, error)
	RunProbe  func(ctx context.Context, name string, args ...string) (string, error)
	Logger    log.Logger

	mu     sync.Mutex
	cached *DeepProfile
}

// NewDeepDetector returns a DeepDetector wired to the real system and the
// given cache file path (config.Config.ProbeCachePath).
func NewDeepDetector(cachePath string) *DeepDetector {
	return &DeepDetector{
		CachePath: cachePath,
		TTL:       config.GetProbeCacheTTL(),
		LookPath:  exec.LookPath,
		RunProbe:  runProbe,
		Logger:    log.Default(),
	}
}

// Probe returns the deep-tier profile, detecting at most once per session
// and reusing the on-disk cache while it is fresh.
func (d *DeepDetector) Probe(ctx context.Context) *DeepProfile {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != nil {
		return d.cached
	}

	if rec := d.loadCache(); rec != nil && time.Since(rec.DetectedAt) < d.TTL {
		d.Logger.Debug("deep-tier probe cache hit", "detected_at", rec.DetectedAt)
		d.cached = &rec.Profile
		return d.cached
	}

	p := d.detect(ctx)
	d.cached = p
	d.saveCache(p)
	return p
}

func (d *DeepDetector) detect(ctx context.Context) *DeepProfile {
	p := &DeepProfile{}

	if out, err := d.RunProbe(ctx, "uname", "-r"); err == nil {
		p.KernelVersion = strings.TrimSpace(out)
	}

	if _, err := d.LookPath("cc"); err == nil {
		p.HasCCompiler = true
	} else if _, err := d.LookPath("gcc"); err == nil {
		p.HasCCompiler = true
	}

	if out, err := d.RunProbe(ctx, "node", "--version"); err == nil {
		p.NodeVersion = strings.TrimPrefix(strings.TrimSpace(out), "v")
	}
	if out, err := d.RunProbe(ctx, "python3", "--version"); err == nil {
		p.PythonVersion = strings.TrimPrefix(strings.TrimSpace(out), "Python ")
	}

	d.detectGPU(ctx, p)
	d.detectCUDA(ctx, p)

	var stat unix.Statfs_t
	if err := unix.Statfs("/usr/local", &stat); err == nil {
		p.DiskFreeBytes = stat.Bavail * uint64(stat.Bsize)
	}

	return p
}

// gpuVendorPatterns match lspci display-controller lines.
var gpuVendorPatterns = map[string]*regexp.Regexp{
	"nvidia": regexp.MustCompile(`(?i)nvidia`),
	"amd":    regexp.MustCompile(`(?i)\b(amd|ati|radeon)\b`),
	"intel":  regexp.MustCompile(`(?i)intel`),
}

func (d *DeepDetector) detectGPU(ctx context.Context, p *DeepProfile) {
	out, err := d.RunProbe(ctx, "lspci")
	if err != nil {
		return
	}
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "vga") && !strings.Contains(lower, "3d controller") {
			continue
		}
		// Discrete vendors win over integrated graphics.
		for _, vendor := range []string{"nvidia", "amd"} {
			if gpuVendorPatterns[vendor].MatchString(line) {
				p.GPUVendor = vendor
				p.GPUModel = strings.TrimSpace(line)
				return
			}
		}
		if p.GPUVendor == "" && gpuVendorPatterns["intel"].MatchString(line) {
			p.GPUVendor = "intel"
			p.GPUModel = strings.TrimSpace(line)
		}
	}
}

var nvccReleaseRe = regexp.MustCompile(`release (\d+\.\d+)`)
var smiDriverRe = regexp.MustCompile(`Driver Version:\s*([\d.]+)`)

func (d *DeepDetector) detectCUDA(ctx context.Context, p *DeepProfile) {
	if out, err := d.RunProbe(ctx, "nvcc", "--version"); err == nil {
		if m := nvccReleaseRe.FindStringSubmatch(out); m != nil {
			p.CUDAVersion = m[1]
		}
	}
	if out, err := d.RunProbe(ctx, "nvidia-smi"); err == nil {
		if m := smiDriverRe.FindStringSubmatch(out); m != nil {
			p.DriverVersion = m[1]
		}
	}
}

func (d *DeepDetector) loadCache() *probeCacheRecord {
	if d.CachePath == "" {
		return nil
	}
	data, err := os.ReadFile(d.CachePath)
	if err != nil {
		return nil
	}
	var rec probeCacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		d.Logger.Warn("probe cache corrupted, re-detecting", "path", d.CachePath)
		return nil
	}
	return &rec
}

func (d *DeepDetector) saveCache(p *DeepProfile) {
	if d.CachePath == "" {
		return
	}
	rec := probeCacheRecord{DetectedAt: time.Now().UTC(), Profile: *p}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return
	}
	tmp := d.CachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		d.Logger.Debug("failed to write probe cache", "error", err)
		return
	}
	if err := os.Rename(tmp, d.CachePath); err != nil {
		os.Remove(tmp)
	}
}

// runProbe executes a short-lived probe command with a hard 5s budget so a
// wedged probe cannot stall detection.
func runProbe(ctx context.Context, name string, args ...string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, name, args...).Output()
	return string(out), err
}
