package taskconfig

import (
	"runtime"
	"slices"
)

// Kind is the canonical task_type tag of one work kind.
type Kind string

const (
	KindCoverage            Kind = "Coverage"
	KindDotnetCoverage      Kind = "DotnetCoverage"
	KindDotnetCrashReport   Kind = "DotnetCrashReport"
	KindLibFuzzerDotnetFuzz Kind = "LibFuzzerDotnetFuzz"
	KindLibFuzzerFuzz       Kind = "LibFuzzerFuzz"
	KindLibFuzzerReport     Kind = "LibFuzzerReport"
	KindLibFuzzerMerge      Kind = "LibFuzzerMerge"
	KindLibFuzzerRegression Kind = "LibFuzzerRegression"
	KindGenericAnalysis     Kind = "GenericAnalysis"
	KindGenericGenerator    Kind = "GenericGenerator"
	KindGenericSupervisor   Kind = "GenericSupervisor"
	KindGenericMerge        Kind = "GenericMerge"
	KindGenericReport       Kind = "GenericReport"
	KindGenericRegression   Kind = "GenericRegression"
)

// Variant describes one member of the task union.
type Variant struct {
	Kind      Kind
	Aliases   []string
	EventType string
	// Platforms lists the GOOS values the kind runs on. Empty means all.
	Platforms []string
	New       func() Payload
}

var nativeCoverage = []string{"linux", "windows"}

var variants = []Variant{
	{Kind: KindCoverage, Aliases: []string{"coverage"}, EventType: "coverage", Platforms: nativeCoverage,
		New: func() Payload { return &CoverageConfig{} }},
	{Kind: KindDotnetCoverage, Aliases: []string{"dotnet_coverage"}, EventType: "dotnet_coverage", Platforms: nativeCoverage,
		New: func() Payload { return &DotnetCoverageConfig{} }},
	{Kind: KindDotnetCrashReport, Aliases: []string{"dotnet_crash_report"}, EventType: "dotnet_crash_report",
		New: func() Payload { return &DotnetCrashReportConfig{} }},
	// The dotnet fuzzer reports under the libfuzzer_fuzz event type so existing
	// dashboards keep counting it with the native fuzzer.
	{Kind: KindLibFuzzerDotnetFuzz, Aliases: []string{"libfuzzer_dotnet_fuzz"}, EventType: "libfuzzer_fuzz", Platforms: nativeCoverage,
		New: func() Payload { return &LibFuzzerDotnetFuzzConfig{} }},
	{Kind: KindLibFuzzerFuzz, Aliases: []string{"libfuzzer_fuzz"}, EventType: "libfuzzer_fuzz",
		New: func() Payload { return &LibFuzzerFuzzConfig{} }},
	{Kind: KindLibFuzzerReport, Aliases: []string{"libfuzzer_crash_report"}, EventType: "libfuzzer_crash_report",
		New: func() Payload { return &LibFuzzerReportConfig{} }},
	{Kind: KindLibFuzzerMerge, Aliases: []string{"libfuzzer_merge"}, EventType: "libfuzzer_merge",
		New: func() Payload { return &LibFuzzerMergeConfig{} }},
	{Kind: KindLibFuzzerRegression, Aliases: []string{"libfuzzer_regression"}, EventType: "libfuzzer_regression",
		New: func() Payload { return &LibFuzzerRegressionConfig{} }},
	{Kind: KindGenericAnalysis, Aliases: []string{"generic_analysis"}, EventType: "generic_analysis",
		New: func() Payload { return &GenericAnalysisConfig{} }},
	{Kind: KindGenericGenerator, Aliases: []string{"generic_generator"}, EventType: "generic_generator",
		New: func() Payload { return &GenericGeneratorConfig{} }},
	{Kind: KindGenericSupervisor, Aliases: []string{"generic_supervisor"}, EventType: "generic_supervisor",
		New: func() Payload { return &GenericSupervisorConfig{} }},
	{Kind: KindGenericMerge, Aliases: []string{"generic_merge"}, EventType: "generic_merge",
		New: func() Payload { return &GenericMergeConfig{} }},
	{Kind: KindGenericReport, Aliases: []string{"generic_crash_report"}, EventType: "generic_crash_report",
		New: func() Payload { return &GenericReportConfig{} }},
	{Kind: KindGenericRegression, Aliases: []string{"generic_regression"}, EventType: "generic_regression",
		New: func() Payload { return &GenericRegressionConfig{} }},
}

// AllVariants returns every known variant regardless of platform.
func AllVariants() []Variant {
	return slices.Clone(variants)
}

// EventType returns the task_start event type for k, or "" for unknown kinds.
func (k Kind) EventType() string {
	for _, v := range variants {
		if v.Kind == k {
			return v.EventType
		}
	}
	return ""
}

// Tags returns the canonical tag followed by its aliases.
func (v Variant) Tags() []string {
	return append([]string{string(v.Kind)}, v.Aliases...)
}

// SupportedOn reports whether the variant runs on goos.
func (v Variant) SupportedOn(goos string) bool {
	return len(v.Platforms) == 0 || slices.Contains(v.Platforms, goos)
}

// Catalog is the platform-resolved subset of variants accepted by the loader.
type Catalog struct {
	goos     string
	variants []Variant
	byTag    map[string]Variant
}

// DefaultCatalog resolves the catalog for the running platform.
func DefaultCatalog() *Catalog {
	return CatalogFor(runtime.GOOS)
}

// CatalogFor resolves the catalog for goos.
func CatalogFor(goos string) *Catalog {
	c := &Catalog{goos: goos, byTag: make(map[string]Variant)}
	for _, v := range variants {
		if !v.SupportedOn(goos) {
			continue
		}
		c.variants = append(c.variants, v)
		for _, tag := range v.Tags() {
			c.byTag[tag] = v
		}
	}
	return c
}

// GOOS returns the platform this catalog was resolved for.
func (c *Catalog) GOOS() string {
	return c.goos
}

// Lookup matches tag case-sensitively against canonical tags and aliases.
func (c *Catalog) Lookup(tag string) (Variant, bool) {
	v, ok := c.byTag[tag]
	return v, ok
}

// Kinds returns the kinds available in this catalog in declaration order.
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, 0, len(c.variants))
	for _, v := range c.variants {
		out = append(out, v.Kind)
	}
	return out
}

func knownTag(tag string) (Variant, bool) {
	for _, v := range variants {
		if slices.Contains(v.Tags(), tag) {
			return v, true
		}
	}
	return Variant{}, false
}
