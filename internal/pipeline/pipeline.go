// Package pipeline executes device commands end to end.
//
// A command moves through a fixed sequence of stages: permission
// validation, capability check, rate limiting, vendor dispatch with
// retries, audit and state synchronisation. Every attempt produces a
// device control audit entry whatever the outcome, and a vendor call
// that completed is always audited and synchronised even when the
// caller's context was cancelled while it ran.
package pipeline

import (
	"context"
	"time"

	"github.com/mbegale/dwellio-core/internal/access"
	"github.com/mbegale/dwellio-core/internal/adapter"
	"github.com/mbegale/dwellio-core/internal/audit"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
	"github.com/mbegale/dwellio-core/internal/retry"
)

// Stage identifies where in the pipeline a command currently is, or
// where it stopped.
type Stage string

const (
	StageValidating   Stage = "validating"
	StageRateChecking Stage = "rate_checking"
	StageDispatching  Stage = "dispatching"
	StageAuditing     Stage = "auditing"
	StageSyncing      Stage = "syncing"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Request is a command submitted for execution.
type Request struct {
	UserID             string
	DeviceID           string
	Command            device.Command
	BiometricConfirmed bool
}

// Result reports the outcome of a command.
type Result struct {
	Device *device.Device
	Stage  Stage
}

// Authorizer decides whether a user may perform an operation on a
// device. Satisfied by access.Validator.
type Authorizer interface {
	Authorize(ctx context.Context, req access.Request) (*access.Grant, error)
}

// RateLimiter gates command volume per user and device. Satisfied by
// ratelimit.Limiter.
type RateLimiter interface {
	CanPerformAction(resource string) bool
	RecordAction(resource string)
}

// Syncer receives the post-command device state. Satisfied by
// statesync.Engine.
type Syncer interface {
	Apply(d *device.Device) error
}

// Logger is the minimal logging interface the executor needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Executor runs commands through the pipeline.
type Executor struct {
	auth     Authorizer
	limiter  RateLimiter
	adapters *adapter.Registry
	audit    *audit.Logger
	syncer   Syncer
	policy   retry.Policy
	log      Logger

	now func() time.Time
}

// NewExecutor wires the pipeline's collaborators together.
func NewExecutor(auth Authorizer, limiter RateLimiter, adapters *adapter.Registry, auditLog *audit.Logger, syncer Syncer, policy retry.Policy) *Executor {
	return &Executor{
		auth:     auth,
		limiter:  limiter,
		adapters: adapters,
		audit:    auditLog,
		syncer:   syncer,
		policy:   policy,
		log:      noopLogger{},
		now:      time.Now,
	}
}

// SetLogger replaces the executor's logger.
func (e *Executor) SetLogger(log Logger) {
	if log != nil {
		e.log = log
	}
}

// Execute runs one command through every stage. The returned device is
// the refreshed state after a successful dispatch.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	grant, err := e.auth.Authorize(ctx, access.Request{
		UserID:             req.UserID,
		DeviceID:           req.DeviceID,
		Operation:          req.Command.Name,
		BiometricConfirmed: req.BiometricConfirmed,
	})
	if err != nil {
		e.auditAttempt(req, audit.StatusDenied, map[string]any{"reason": string(operr.KindOf(err))})
		return &Result{Stage: StageFailed}, err
	}

	// Unsupported commands fail before any vendor traffic.
	if !grant.Device.Supports(req.Command.Name) {
		err := operr.E(operr.KindUnsupportedCommand, req.Command.Name, nil)
		e.auditAttempt(req, audit.StatusFailure, map[string]any{"reason": string(operr.KindUnsupportedCommand)})
		return &Result{Stage: StageFailed}, err
	}

	resource := req.UserID + ":" + req.DeviceID
	if !e.limiter.CanPerformAction(resource) {
		// The attempt entry precedes the security entry so the audit
		// trail reads in causal order.
		e.auditAttempt(req, audit.StatusDenied, map[string]any{"reason": string(operr.KindRateLimited)})
		e.audit.Log(ctx, audit.CategorySecurity, audit.ActionRateLimitExceeded, audit.StatusDenied,
			req.UserID, map[string]any{"deviceId": req.DeviceID, "command": req.Command.Name})
		return &Result{Stage: StageFailed}, operr.E(operr.KindRateLimited, resource, nil)
	}
	// Recorded before dispatch so a slow vendor call cannot be used to
	// slip extra commands inside the window.
	e.limiter.RecordAction(resource)

	vendorAdapter, err := e.adapters.ForManufacturer(grant.Device.Manufacturer)
	if err != nil {
		e.auditAttempt(req, audit.StatusFailure, map[string]any{"reason": "unknownManufacturer"})
		return &Result{Stage: StageFailed}, err
	}

	fresh, dispatchErr := retry.Do(ctx, e.policy, func(ctx context.Context) (*device.Device, error) {
		return vendorAdapter.ExecuteCommand(ctx, req.DeviceID, req.Command)
	})

	// From here on the vendor call has settled. Audit and state sync
	// run even if the caller has gone away.
	if dispatchErr != nil {
		e.log.Warn("command dispatch failed",
			"device_id", req.DeviceID,
			"command", req.Command.Name,
			"error", dispatchErr)
		e.auditAttempt(req, audit.StatusFailure, map[string]any{
			"reason":       string(operr.KindOf(dispatchErr)),
			"manufacturer": grant.Device.Manufacturer,
		})
		// Failed lock operations still land in the access history.
		if e.recordLockAccess(grant.Device, req, false, string(operr.KindOf(dispatchErr))) {
			if err := e.syncer.Apply(grant.Device); err != nil {
				e.log.Error("recording failed lock attempt", "device_id", req.DeviceID, "error", err)
			}
		}
		return &Result{Stage: StageFailed}, dispatchErr
	}

	e.auditAttempt(req, audit.StatusSuccess, map[string]any{
		"manufacturer": grant.Device.Manufacturer,
	})

	merged := mergeVendorState(grant.Device, fresh, e.now())
	e.recordLockAccess(merged, req, true, "")

	if err := e.syncer.Apply(merged); err != nil {
		e.log.Error("state sync after command failed",
			"device_id", req.DeviceID,
			"error", err)
		return &Result{Device: merged, Stage: StageSyncing}, err
	}

	e.log.Info("command executed",
		"device_id", req.DeviceID,
		"command", req.Command.Name,
		"user_id", req.UserID)

	return &Result{Device: merged, Stage: StageDone}, nil
}

// auditAttempt writes the device control entry every command attempt
// produces.
func (e *Executor) auditAttempt(req Request, status audit.Status, extra map[string]any) {
	details := map[string]any{
		"deviceId": req.DeviceID,
		"command":  req.Command.Name,
	}
	for k, v := range extra {
		details[k] = v
	}
	e.audit.Log(context.Background(), audit.CategoryDeviceControl, audit.ActionCommandExecuted, status,
		req.UserID, details)
}

// recordLockAccess appends an access history record for lock
// operations. It reports whether a record was appended.
func (e *Executor) recordLockAccess(d *device.Device, req Request, success bool, failureReason string) bool {
	if d.CapabilityType != device.CapabilityLock {
		return false
	}
	if req.Command.Name != "lock" && req.Command.Name != "unlock" {
		return false
	}
	d.AppendAccessRecord(device.AccessRecord{
		Timestamp:     e.now(),
		Operation:     req.Command.Name,
		UserID:        req.UserID,
		Success:       success,
		FailureReason: failureReason,
	})
	return true
}

// mergeVendorState folds the vendor's refreshed state into the
// registry's view of the device, preserving registry-owned fields such
// as name, unit and room assignment.
func mergeVendorState(known, fresh *device.Device, now time.Time) *device.Device {
	merged := known.DeepCopy()
	merged.Online = fresh.Online
	merged.LastSeen = &now

	switch merged.CapabilityType {
	case device.CapabilityLock:
		if fresh.Lock != nil {
			history := merged.Lock.History
			merged.Lock = &device.LockInfo{
				State:        fresh.Lock.State,
				BatteryLevel: fresh.Lock.BatteryLevel,
				History:      history,
			}
		}
	case device.CapabilityLight:
		if fresh.Light != nil {
			light := *fresh.Light
			if fresh.Light.Color != nil {
				color := *fresh.Light.Color
				light.Color = &color
			}
			merged.Light = &light
		}
	case device.CapabilityThermostat:
		if fresh.Thermostat != nil {
			info := *fresh.Thermostat
			merged.Thermostat = &info
		}
	case device.CapabilitySwitch:
		if fresh.Switch != nil {
			sw := *fresh.Switch
			merged.Switch = &sw
		}
	}

	return merged
}
