package taskconfig

import (
	"errors"
	"fmt"
	"strings"
)

// Payload is the kind-specific body of a task document.
type Payload interface {
	// Common returns the shared envelope embedded in the payload.
	Common() *CommonConfig
	// Invocation returns the tool the kind's runner spawns.
	Invocation() Invocation
	validate() error
}

// Invocation is the external tool a runner spawns for a work kind.
type Invocation struct {
	Exe  string
	Args []string
	Env  map[string]string
}

// Envelope carries the common section of a document.
type Envelope struct {
	CommonConfig CommonConfig `json:"common"`
}

func (e *Envelope) Common() *CommonConfig {
	return &e.CommonConfig
}

// Target describes the binary under test.
type Target struct {
	TargetExe     string            `json:"target_exe"`
	TargetEnv     map[string]string `json:"target_env,omitempty"`
	TargetOptions []string          `json:"target_options,omitempty"`
	// TargetTimeout is in seconds; 0 means the runner default.
	TargetTimeout uint64 `json:"target_timeout,omitempty"`
}

func (t Target) invocation() Invocation {
	return Invocation{Exe: t.TargetExe, Args: t.TargetOptions, Env: t.TargetEnv}
}

func (t Target) validate() error {
	if strings.TrimSpace(t.TargetExe) == "" {
		return errors.New("missing target_exe")
	}
	return nil
}

// Reporting holds the crash triage knobs shared by report and regression kinds.
type Reporting struct {
	CheckRetryCount     uint64 `json:"check_retry_count,omitempty"`
	MinimizedStackDepth uint64 `json:"minimized_stack_depth,omitempty"`
	CheckQueue          bool   `json:"check_queue,omitempty"`
}

type CoverageConfig struct {
	Envelope
	Target
	CoverageFilter  string `json:"coverage_filter,omitempty"`
	ModuleAllowlist string `json:"module_allowlist,omitempty"`
	SourceAllowlist string `json:"source_allowlist,omitempty"`
}

func (c *CoverageConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *CoverageConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

type DotnetCoverageConfig struct {
	Envelope
	Target
	Coverage string `json:"coverage,omitempty"`
}

func (c *DotnetCoverageConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *DotnetCoverageConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

type DotnetCrashReportConfig struct {
	Envelope
	Target
	Reporting
}

func (c *DotnetCrashReportConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *DotnetCrashReportConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

type LibFuzzerDotnetFuzzConfig struct {
	Envelope
	Target
	TargetWorkers uint64 `json:"target_workers,omitempty"`
}

func (c *LibFuzzerDotnetFuzzConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *LibFuzzerDotnetFuzzConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

type LibFuzzerFuzzConfig struct {
	Envelope
	Target
	TargetWorkers        uint64 `json:"target_workers,omitempty"`
	CheckFuzzerHelp      bool   `json:"check_fuzzer_help,omitempty"`
	ExpectCrashOnFailure bool   `json:"expect_crash_on_failure,omitempty"`
}

func (c *LibFuzzerFuzzConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *LibFuzzerFuzzConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

type LibFuzzerReportConfig struct {
	Envelope
	Target
	Reporting
}

func (c *LibFuzzerReportConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *LibFuzzerReportConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

type LibFuzzerMergeConfig struct {
	Envelope
	Target
	PreserveExistingOutputs bool `json:"preserve_existing_outputs,omitempty"`
}

func (c *LibFuzzerMergeConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *LibFuzzerMergeConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

type LibFuzzerRegressionConfig struct {
	Envelope
	Target
	Reporting
	ReportList []string `json:"report_list,omitempty"`
}

func (c *LibFuzzerRegressionConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *LibFuzzerRegressionConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

type GenericAnalysisConfig struct {
	Envelope
	Target
	AnalyzerExe     string            `json:"analyzer_exe"`
	AnalyzerOptions []string          `json:"analyzer_options,omitempty"`
	AnalyzerEnv     map[string]string `json:"analyzer_env,omitempty"`
}

func (c *GenericAnalysisConfig) Invocation() Invocation {
	return Invocation{Exe: c.AnalyzerExe, Args: c.AnalyzerOptions, Env: c.AnalyzerEnv}
}

func (c *GenericAnalysisConfig) validate() error {
	return validatePayload(c.Common(), requireField("analyzer_exe", c.AnalyzerExe))
}

type GenericGeneratorConfig struct {
	Envelope
	Target
	GeneratorExe     string            `json:"generator_exe"`
	GeneratorOptions []string          `json:"generator_options,omitempty"`
	GeneratorEnv     map[string]string `json:"generator_env,omitempty"`
	RenameOutput     bool              `json:"rename_output,omitempty"`
}

func (c *GenericGeneratorConfig) Invocation() Invocation {
	return Invocation{Exe: c.GeneratorExe, Args: c.GeneratorOptions, Env: c.GeneratorEnv}
}

func (c *GenericGeneratorConfig) validate() error {
	return validatePayload(c.Common(), requireField("generator_exe", c.GeneratorExe))
}

// Supervisor describes a long-running external fuzzer or merge driver.
type Supervisor struct {
	SupervisorExe     string            `json:"supervisor_exe"`
	SupervisorOptions []string          `json:"supervisor_options,omitempty"`
	SupervisorEnv     map[string]string `json:"supervisor_env,omitempty"`
}

func (s Supervisor) invocation() Invocation {
	return Invocation{Exe: s.SupervisorExe, Args: s.SupervisorOptions, Env: s.SupervisorEnv}
}

type GenericSupervisorConfig struct {
	Envelope
	Supervisor
	TargetExe             string `json:"target_exe,omitempty"`
	SupervisorInputMarker string `json:"supervisor_input_marker,omitempty"`
}

func (c *GenericSupervisorConfig) Invocation() Invocation { return c.Supervisor.invocation() }
func (c *GenericSupervisorConfig) validate() error {
	return validatePayload(c.Common(), requireField("supervisor_exe", c.SupervisorExe))
}

type GenericMergeConfig struct {
	Envelope
	Supervisor
	TargetExe               string `json:"target_exe,omitempty"`
	PreserveExistingOutputs bool   `json:"preserve_existing_outputs,omitempty"`
}

func (c *GenericMergeConfig) Invocation() Invocation { return c.Supervisor.invocation() }
func (c *GenericMergeConfig) validate() error {
	return validatePayload(c.Common(), requireField("supervisor_exe", c.SupervisorExe))
}

type GenericReportConfig struct {
	Envelope
	Target
	Reporting
	CheckAsanLog  bool `json:"check_asan_log,omitempty"`
	CheckDebugger bool `json:"check_debugger,omitempty"`
}

func (c *GenericReportConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *GenericReportConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

type GenericRegressionConfig struct {
	Envelope
	Target
	Reporting
	ReportList    []string `json:"report_list,omitempty"`
	CheckAsanLog  bool     `json:"check_asan_log,omitempty"`
	CheckDebugger bool     `json:"check_debugger,omitempty"`
}

func (c *GenericRegressionConfig) Invocation() Invocation { return c.Target.invocation() }
func (c *GenericRegressionConfig) validate() error        { return validatePayload(c.Common(), c.Target.validate()) }

func validatePayload(common *CommonConfig, toolErr error) error {
	if err := common.Validate(); err != nil {
		return err
	}
	if toolErr != nil {
		return toolErr
	}
	return nil
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing %s", name)
	}
	return nil
}
