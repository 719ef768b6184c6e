package application

import (
	"context"
	"errors"
	"log/slog"

	"text-assistant/internal/domain"
)

type DeviceStore interface {
	LoadClientSecret() (domain.ClientSecret, error)
	LoadDevice() (domain.DeviceIdentity, error)
	SaveDevice(id domain.DeviceIdentity) error
}

// DeviceRegistry derives the device identity from the client-secret project
// and persists it. Registration is local and makes no network call.
type DeviceRegistry struct {
	store  DeviceStore
	logger *slog.Logger
}

func NewDeviceRegistry(store DeviceStore, logger *slog.Logger) *DeviceRegistry {
	return &DeviceRegistry{store: store, logger: logger}
}

// RegisterDevice is idempotent: the same client secret always produces the
// same file contents.
func (r *DeviceRegistry) RegisterDevice(ctx context.Context) (domain.DeviceIdentity, error) {
	if err := ctx.Err(); err != nil {
		return domain.DeviceIdentity{}, err
	}

	secret, err := r.store.LoadClientSecret()
	if err != nil {
		if errors.Is(err, domain.ErrMissingClientSecret) {
			return domain.DeviceIdentity{}, err
		}
		return domain.DeviceIdentity{}, domain.NewError(domain.KindRegistrationFailed, "reading project id", err)
	}
	if secret.ProjectID == "" {
		return domain.DeviceIdentity{}, domain.NewError(domain.KindRegistrationFailed, "client secret has no project_id", nil)
	}

	id := domain.DeriveDeviceIdentity(secret.ProjectID)

	if prev, err := r.store.LoadDevice(); err == nil && prev != id {
		r.logger.Warn("replacing device identity from another project",
			"previous_project", prev.ProjectID,
			"project", id.ProjectID,
		)
	}

	if err := r.store.SaveDevice(id); err != nil {
		return domain.DeviceIdentity{}, domain.NewError(domain.KindRegistrationFailed, "saving device config", err)
	}

	r.logger.Info("device registered",
		"project", id.ProjectID,
		"device_model_id", id.DeviceModelID,
		"device_id", id.DeviceID,
	)

	return id, nil
}

func (r *DeviceRegistry) LoadDeviceIdentity() (domain.DeviceIdentity, error) {
	return r.store.LoadDevice()
}
