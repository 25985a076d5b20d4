package failure

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/resolver"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

// RankedOption is a remediation option annotated with its availability on
// the profiled system. Options are presented ready first, locked second,
// impossible last; unavailable options stay visible with their reasons.
type RankedOption struct {
	recipe.RemedyOption

	Availability resolver.Availability `json:"availability"`
	Reason       string                `json:"reason,omitempty"`
	Hint         string                `json:"hint,omitempty"`
}

// Report is the diagnosis for one failed step.
type Report struct {
	StepID      string                 `json:"step_id"`
	Tool        string                 `json:"tool"`
	Layer       Layer                  `json:"layer"`
	FailureID   string                 `json:"failure_id"`
	Category    recipe.FailureCategory `json:"category"`
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Options     []RankedOption         `json:"options"`
}

// Recommended returns the best available option, or nil when nothing is
// ready (everything is locked or impossible).
func (r *Report) Recommended() *RankedOption {
	if len(r.Options) > 0 && r.Options[0].Availability == resolver.Ready {
		return &r.Options[0]
	}
	return nil
}

// Analyzer matches failed step output against the handler layers.
type Analyzer struct {
	reg    *recipe.Registry
	logger log.Logger

	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// NewAnalyzer builds an Analyzer over the registry.
func NewAnalyzer(reg *recipe.Registry, logger log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{reg: reg, logger: logger, cache: map[string]*regexp.Regexp{}}
}

// Analyze diagnoses a failed step result. Handlers are evaluated
// most-specific first: the tool's own on_failure handlers, then the
// method-family catalog, then the infra catalog. Every handler whose
// pattern matches contributes its options to one flattened list; the first
// match names the diagnosis. Returns nil when nothing matches.
func (a *Analyzer) Analyze(step *plan.Step, res *plan.StepResult, p *sysinfo.Profile) *Report {
	output := strings.Join(append(append([]string{}, res.StderrTail...), res.StdoutTail...), "\n")
	if res.Error != "" {
		output += "\n" + res.Error
	}

	var matches []matchedHandler
	if rec, err := a.reg.Get(step.Metadata.Tool); err == nil {
		matches = a.collect(matches, rec.OnFailure, LayerTool, step, output)
	}
	matches = a.collect(matches, FamilyHandlers, LayerFamily, step, output)
	matches = a.collect(matches, InfraHandlers, LayerInfra, step, output)
	if len(matches) == 0 {
		return nil
	}

	first := matches[0]
	var opts []recipe.RemedyOption
	for _, m := range matches {
		opts = append(opts, m.handler.Options...)
	}
	return &Report{
		StepID:      step.ID,
		Tool:        step.Metadata.Tool,
		Layer:       first.layer,
		FailureID:   first.handler.FailureID,
		Category:    first.handler.Category,
		Label:       first.handler.Label,
		Description: first.handler.Description,
		Options:     a.rank(opts, p),
	}
}

type matchedHandler struct {
	handler *recipe.Handler
	layer   Layer
}

func (a *Analyzer) collect(matches []matchedHandler, handlers []recipe.Handler, layer Layer, step *plan.Step, output string) []matchedHandler {
	for i := range handlers {
		h := &handlers[i]
		if !methodApplies(h, step.Metadata.Method) {
			continue
		}
		re, err := a.compile(h.Pattern)
		if err != nil {
			a.logger.Warn("invalid handler pattern", "failure_id", h.FailureID, "error", err.Error())
			continue
		}
		if !re.MatchString(output) {
			continue
		}
		a.logger.Info("failure matched", "step", step.ID, "failure_id", h.FailureID, "layer", string(layer))
		matches = append(matches, matchedHandler{handler: h, layer: layer})
	}
	return matches
}

func methodApplies(h *recipe.Handler, m recipe.Method) bool {
	if len(h.Methods) == 0 {
		return true
	}
	for _, hm := range h.Methods {
		if hm == m {
			return true
		}
	}
	return false
}

func (a *Analyzer) compile(pattern string) (*regexp.Regexp, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if re, ok := a.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile("(?im)" + pattern)
	if err != nil {
		return nil, err
	}
	a.cache[pattern] = re
	return re, nil
}

// rank annotates each option with its availability and sorts: ready before
// locked before impossible, declared order preserved within each class.
func (a *Analyzer) rank(opts []recipe.RemedyOption, p *sysinfo.Profile) []RankedOption {
	ranked := make([]RankedOption, 0, len(opts))
	for i := range opts {
		ro := RankedOption{RemedyOption: opts[i]}
		g := a.gate(&opts[i], p)
		ro.Availability, ro.Reason, ro.Hint = g.Availability, g.Reason, g.Hint
		ranked = append(ranked, ro)
	}

	weight := map[resolver.Availability]int{
		resolver.Ready:      0,
		resolver.Locked:     1,
		resolver.Impossible: 2,
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return weight[ranked[i].Availability] < weight[ranked[j].Availability]
	})
	return ranked
}

// gate evaluates whether an option's strategy can run on this system.
func (a *Analyzer) gate(opt *recipe.RemedyOption, p *sysinfo.Profile) resolver.Gate {
	switch opt.Strategy {
	case recipe.StrategyInstallDep:
		if !a.reg.Has(opt.Dep) {
			return resolver.Gate{
				Availability: resolver.Impossible,
				Reason:       fmt.Sprintf("no recipe provides %q", opt.Dep),
			}
		}
		return resolver.Gate{Availability: resolver.Ready}

	case recipe.StrategySwitchMethod:
		bin, isLang := recipe.LanguageMethodBinaries[opt.Method]
		if isLang && !p.OnPath(bin) {
			return resolver.Gate{
				Availability: resolver.Locked,
				Reason:       fmt.Sprintf("%s is not on PATH", bin),
				Hint:         fmt.Sprintf("install %s first (it has its own recipe)", bin),
			}
		}
		if fam, isNative := recipe.FamilyForMethod[opt.Method]; isNative && p.DistroFamily != fam {
			return resolver.Gate{
				Availability: resolver.Impossible,
				Reason:       fmt.Sprintf("%s targets the %s family", opt.Method, fam),
			}
		}
		return resolver.Gate{Availability: resolver.Ready}

	case recipe.StrategyInstallPackages:
		if _, ok := opt.Packages[p.DistroFamily]; !ok {
			return resolver.Gate{
				Availability: resolver.Impossible,
				Reason:       fmt.Sprintf("no package mapping for the %s family", p.DistroFamily),
			}
		}
		return resolver.WritableRootGate(p)

	default:
		// retry_with_modifier, env_fix, cleanup_retry, manual need nothing
		// beyond what already ran.
		return resolver.Gate{Availability: resolver.Ready}
	}
}
