package application

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"text-assistant/internal/domain"
)

type SetupPhase int

const (
	PhaseNotStarted SetupPhase = iota
	PhaseSchemaMissing
	PhaseSchemaReady
	PhaseDeviceMissing
	PhaseDeviceReady
	PhaseComplete
	PhaseFailed
)

func (p SetupPhase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseSchemaMissing:
		return "schema_missing"
	case PhaseSchemaReady:
		return "schema_ready"
	case PhaseDeviceMissing:
		return "device_missing"
	case PhaseDeviceReady:
		return "device_ready"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type SetupStep string

const (
	StepReadiness    SetupStep = "check-readiness"
	StepClientSecret SetupStep = "client-secret"
	StepSchema       SetupStep = "generate-schema"
	StepRegister     SetupStep = "register-device"
)

// SetupOutcome is where the machine stopped. FailedStep and Err are set only
// in PhaseFailed.
type SetupOutcome struct {
	Phase      SetupPhase
	FailedStep SetupStep
	Err        error
}

func (o SetupOutcome) Complete() bool {
	return o.Phase == PhaseComplete
}

type SetupProgress struct {
	Phase   SetupPhase
	Step    SetupStep
	Message string
}

type SchemaGenerator interface {
	Generate(ctx context.Context) error
}

type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context) (domain.DeviceIdentity, error)
}

// Setup computes readiness from the filesystem and drives the ordered setup
// sequence: schema generation, then device registration with the first
// credential issuance.
type Setup struct {
	artifacts domain.Artifacts
	schema    SchemaGenerator
	registry  DeviceRegistrar
	creds     CredentialProvider
	logger    *slog.Logger
}

func NewSetup(
	artifacts domain.Artifacts,
	schema SchemaGenerator,
	registry DeviceRegistrar,
	creds CredentialProvider,
	logger *slog.Logger,
) *Setup {
	return &Setup{
		artifacts: artifacts,
		schema:    schema,
		registry:  registry,
		creds:     creds,
		logger:    logger,
	}
}

// CheckReadiness only observes the filesystem. An artifact that cannot be
// inspected counts as absent and its I/O error, with the path, is returned.
func CheckReadiness(a domain.Artifacts) (domain.ReadinessStatus, error) {
	var errs []error
	exists := func(path string) bool {
		_, err := os.Stat(path)
		if err == nil {
			return true
		}
		if !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, domain.IOError(path, err))
		}
		return false
	}

	status := domain.ReadinessStatus{
		ClientSecret:     exists(a.ClientSecret),
		Device:           exists(a.Device),
		Token:            exists(a.Token),
		SchemaSource:     exists(a.SchemaSource),
		SchemaDescriptor: exists(a.SchemaDescriptor),
	}
	return status, errors.Join(errs...)
}

func (s *Setup) CheckReadiness() domain.ReadinessStatus {
	status, _ := s.probe()
	return status
}

func (s *Setup) probe() (domain.ReadinessStatus, error) {
	status, err := CheckReadiness(s.artifacts)
	if err != nil {
		s.logger.Warn("cannot inspect setup artifacts", "error", err)
	}
	for _, e := range status.Entries() {
		s.logger.Debug("checked artifact", "name", e.Name, "present", e.Present)
	}
	return status, err
}

// State maps the current readiness onto the machine's phases without running
// any step.
func (s *Setup) State() SetupOutcome {
	return phaseOf(s.CheckReadiness())
}

func phaseOf(status domain.ReadinessStatus) SetupOutcome {
	switch {
	case !status.ClientSecret:
		return SetupOutcome{
			Phase:      PhaseFailed,
			FailedStep: StepClientSecret,
			Err:        domain.ErrMissingClientSecret,
		}
	case !status.SchemaReady():
		return SetupOutcome{Phase: PhaseSchemaMissing}
	case !status.DeviceReady():
		return SetupOutcome{Phase: PhaseDeviceMissing}
	default:
		return SetupOutcome{Phase: PhaseComplete}
	}
}

// Run executes the missing steps in order. A failing step halts the machine;
// completed steps stay valid so a retry resumes from the failed one.
func (s *Setup) Run(ctx context.Context, progress func(SetupProgress)) SetupOutcome {
	report := func(phase SetupPhase, step SetupStep, msg string) {
		s.logger.Info(msg, "phase", phase.String(), "step", string(step))
		if progress != nil {
			progress(SetupProgress{Phase: phase, Step: step, Message: msg})
		}
	}
	fail := func(step SetupStep, err error) SetupOutcome {
		s.logger.Error("setup step failed", "step", string(step), "error", err)
		if progress != nil {
			progress(SetupProgress{Phase: PhaseFailed, Step: step, Message: err.Error()})
		}
		return SetupOutcome{Phase: PhaseFailed, FailedStep: step, Err: err}
	}

	report(PhaseNotStarted, "", "starting setup")
	status, err := s.probe()
	if err != nil {
		return fail(StepReadiness, err)
	}

	if !status.ClientSecret {
		return fail(StepClientSecret, domain.NewError(domain.KindMissingClientSecret, s.artifacts.ClientSecret, nil))
	}

	if status.SchemaReady() {
		report(PhaseSchemaReady, StepSchema, "protocol schema present")
	} else {
		report(PhaseSchemaMissing, StepSchema, "generating protocol schema")
		if err := s.schema.Generate(ctx); err != nil {
			return fail(StepSchema, asKind(domain.KindSchemaGenerationFailed, err))
		}
		report(PhaseSchemaReady, StepSchema, "protocol schema generated")
	}

	if status.DeviceReady() {
		report(PhaseDeviceReady, StepRegister, "device already registered")
	} else {
		report(PhaseDeviceMissing, StepRegister, "registering device")
		if _, err := s.registry.RegisterDevice(ctx); err != nil {
			return fail(StepRegister, asKind(domain.KindRegistrationFailed, err))
		}
		if _, err := s.creds.GetValidCredential(ctx); err != nil {
			return fail(StepRegister, err)
		}
		report(PhaseDeviceReady, StepRegister, "device registered and authorized")
	}

	report(PhaseComplete, "", "setup complete")
	return SetupOutcome{Phase: PhaseComplete}
}

// asKind leaves errors that already carry a domain kind untouched.
func asKind(kind domain.Kind, err error) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.NewError(kind, "", err)
}
