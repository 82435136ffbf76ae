package access

import (
	"context"
	"errors"
	"time"

	"github.com/mbegale/dwellio-core/internal/audit"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

// DeviceSource resolves target devices for authorisation decisions.
// Satisfied by *device.Registry.
type DeviceSource interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// Request describes a single authorisation check.
//
// BiometricConfirmed and DeviceCompromised are opaque signals supplied by
// the caller; the mechanics behind them (biometrics, jailbreak detection)
// are outside this core.
type Request struct {
	UserID             string
	DeviceID           string
	Operation          string
	BiometricConfirmed bool
	DeviceCompromised  bool
}

// Grant is the result of a successful authorisation: the resolved user
// and device, so the pipeline does not resolve them twice.
type Grant struct {
	User   *User
	Device *device.Device
}

// highRiskOperations are state transitions that require step-up
// authentication when the deployment mandates it.
var highRiskOperations = map[string]bool{
	"unlock": true,
}

// Config holds validator policy settings.
type Config struct {
	// RequireStepUp requires biometric confirmation for high-risk
	// operations such as unlock.
	RequireStepUp bool
}

// Validator evaluates role- and context-based device authorisation.
// Every decision, grant or denial, produces an audit entry.
type Validator struct {
	users   UserStore
	devices DeviceSource
	audit   *audit.Logger
	cfg     Config
	now     func() time.Time // injectable clock for tests
}

// NewValidator creates a permission validator.
func NewValidator(users UserStore, devices DeviceSource, auditLog *audit.Logger, cfg Config) *Validator {
	return &Validator{
		users:   users,
		devices: devices,
		audit:   auditLog,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Authorize evaluates the request and returns a Grant on success.
//
// Failures surface as operr kinds: user_not_found, device_not_found, or
// unauthorized with the denial reason in the message. Both grants and
// denials are audited with the evaluated role and reason.
func (v *Validator) Authorize(ctx context.Context, req Request) (*Grant, error) {
	user, err := v.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			v.logDenial(ctx, req, "", "unknownUser")
			return nil, operr.E(operr.KindUserNotFound, req.UserID, err)
		}
		return nil, err
	}

	dev, err := v.devices.GetDevice(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			v.logDenial(ctx, req, user.Role, "unknownDevice")
			return nil, operr.E(operr.KindDeviceNotFound, req.DeviceID, err)
		}
		return nil, err
	}

	if reason := v.evaluate(user, dev, req); reason != "" {
		v.logDenial(ctx, req, user.Role, reason)
		return nil, operr.E(operr.KindUnauthorized, reason, nil)
	}

	v.audit.Log(ctx, audit.CategorySecurity, audit.ActionPermissionGranted, audit.StatusSuccess, req.UserID,
		map[string]any{
			"device_id": req.DeviceID,
			"operation": req.Operation,
			"role":      string(user.Role),
		})

	return &Grant{User: user, Device: dev}, nil
}

// evaluate applies the role policy. It returns the denial reason, or the
// empty string when access is granted.
func (v *Validator) evaluate(user *User, dev *device.Device, req Request) string {
	if !user.IsActive {
		return "inactiveUser"
	}
	if req.DeviceCompromised {
		return "compromisedDevice"
	}

	switch user.Role {
	case RoleOwner, RolePropertyManager:
		// unrestricted

	case RoleTenant:
		if !user.InScope(dev.UnitID, dev.RoomID) {
			return "outsideAssignedScope"
		}

	case RoleGuest:
		if !user.GuestAccess.CoversDevice(dev.ID) {
			return "deviceNotGranted"
		}
		if !user.GuestAccess.ActiveAt(v.now()) {
			return "accessWindowExpired"
		}

	default:
		return "unknownRole"
	}

	if v.cfg.RequireStepUp && highRiskOperations[req.Operation] && !req.BiometricConfirmed {
		return "stepUpRequired"
	}

	return ""
}

func (v *Validator) logDenial(ctx context.Context, req Request, role Role, reason string) {
	v.audit.Log(ctx, audit.CategorySecurity, audit.ActionPermissionDenied, audit.StatusDenied, req.UserID,
		map[string]any{
			"device_id": req.DeviceID,
			"operation": req.Operation,
			"role":      string(role),
			"reason":    reason,
		})
}
