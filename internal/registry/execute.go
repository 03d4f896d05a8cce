package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
)

// Execute runs cmd against device id.
//
// The optimistic state is applied before the adapter is called. On success
// it is replaced by the adapter's reported state (or kept, for protocols
// that confirm asynchronously) and persisted. On failure the device reverts
// to its last confirmed state, keeping only the reachability the failure
// revealed, and the adapter error is returned. If a newer command was
// dispatched meanwhile, the result is discarded and ErrSuperseded returned.
//
// The returned device is the state after reconciliation.
//
// Parameters:
//   - ctx: Caller context; the registry's command timeout is applied on top
//   - id: Device to command
//   - cmd: Command built with On, Off, Toggle, Brightness or ColorTemperature
//
// Returns:
//   - device.Device: Device state after reconciliation
//   - error: ErrValidation, ErrDeviceNotFound, ErrSuperseded or the adapter
//     failure (ErrTimeout, ErrNetwork, ErrUnsupported, ...)
//
// Example:
//
//	d, err := reg.Execute(ctx, "lamp-1", registry.Brightness(40))
//	if errors.Is(err, adapter.ErrTimeout) {
//	    // d is back at its last confirmed state
//	}
func (r *Registry) Execute(ctx context.Context, id string, cmd Command) (device.Device, error) {
	if err := cmd.Validate(); err != nil {
		return device.Device{}, err
	}

	r.mu.Lock()
	e, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return device.Device{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	protocol := e.dev.Protocol
	a, err := r.adapterFor(protocol)
	if err != nil {
		current := *e.dev.DeepCopy()
		r.mu.Unlock()
		r.metrics.observeCommand(protocol, cmd.Kind, outcomeRejected, 0)
		return current, err
	}

	// The baseline survives supersedes: it is the last confirmed state, not
	// the previous optimistic one.
	baseline := e.dev.DeepCopy()
	if e.slot != nil {
		baseline = e.slot.baseline
	}
	target := e.dev.DeepCopy()
	token := uuid.NewString()
	started := r.now()

	e.slot = &slot{token: token, baseline: baseline, started: started}
	applyOptimistic(e.dev, cmd)
	e.status = CommandStatus{DeviceID: id, Phase: PhasePending, Command: cmd.Kind, Token: token, UpdatedAt: started}
	optimistic := *e.dev.DeepCopy()
	r.mu.Unlock()

	r.notifier.Broadcast(ChannelDeviceStateChanged, StateChange{Device: optimistic, Pending: true, Source: SourceCommand})

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	res := adapter.Call(func() adapter.Result { return invoke(callCtx, a, target, cmd) })
	cancel()

	return r.reconcile(id, token, cmd, res)
}

// invoke maps a command onto the adapter contract. Adapters without a
// native toggle get on or off from the current power state.
func invoke(ctx context.Context, a adapter.Adapter, d *device.Device, cmd Command) adapter.Result {
	switch cmd.Kind {
	case CommandOn:
		return a.TurnOn(ctx, d)
	case CommandOff:
		return a.TurnOff(ctx, d)
	case CommandToggle:
		if t, ok := a.(adapter.Toggler); ok {
			return t.Toggle(ctx, d)
		}
		if d.Enabled {
			return a.TurnOff(ctx, d)
		}
		return a.TurnOn(ctx, d)
	case CommandSetBrightness:
		return a.SetBrightness(ctx, d, *cmd.Value)
	case CommandSetColorTemperature:
		return a.SetColorTemperature(ctx, d, *cmd.Value)
	default:
		return adapter.Failedf(adapter.ErrValidation, "unknown command %q", cmd.Kind)
	}
}

func (r *Registry) reconcile(id, token string, cmd Command, res adapter.Result) (device.Device, error) {
	if !res.Success && res.Err == nil {
		res.Err = fmt.Errorf("%w: adapter reported failure without an error", adapter.ErrProtocol)
	}

	r.mu.Lock()
	e, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return device.Device{}, fmt.Errorf("%w: %s removed while command was in flight", device.ErrDeviceNotFound, id)
	}
	protocol := e.dev.Protocol
	if e.slot == nil || e.slot.token != token {
		current := *e.dev.DeepCopy()
		r.mu.Unlock()
		r.metrics.observeCommand(protocol, cmd.Kind, outcomeSuperseded, 0)
		r.logger.Debug("discarding superseded command result", "device_id", id, "command", cmd.Kind)
		return current, ErrSuperseded
	}

	now := r.now()
	took := now.Sub(e.slot.started)
	baseline := e.slot.baseline
	e.slot = nil

	if res.Success {
		if res.NewState != nil {
			res.NewState.Apply(e.dev)
		}
		e.status = CommandStatus{DeviceID: id, Phase: PhaseConfirmed, Command: cmd.Kind, Token: token, UpdatedAt: now}
		r.persistDevicesLocked()
		current := *e.dev.DeepCopy()
		r.mu.Unlock()

		r.metrics.observeCommand(protocol, cmd.Kind, outcomeConfirmed, took)
		r.notifier.Broadcast(ChannelDeviceStateChanged, StateChange{Device: current, Source: SourceCommand})
		return current, nil
	}

	e.dev = baseline
	if res.NewState != nil {
		res.NewState.HealthOnly().Apply(e.dev)
	}
	e.status = CommandStatus{
		DeviceID:  id,
		Phase:     PhaseRolledBack,
		Command:   cmd.Kind,
		Token:     token,
		Error:     res.ErrorCode(),
		UpdatedAt: now,
	}
	r.persistDevicesLocked()
	current := *e.dev.DeepCopy()
	r.mu.Unlock()

	r.metrics.observeCommand(protocol, cmd.Kind, outcomeRolledBack, took)
	r.logger.Warn("command failed, state rolled back",
		"device_id", id, "command", cmd.Kind, "error", res.Err)
	r.notifier.Broadcast(ChannelDeviceStateChanged, StateChange{Device: current, Source: SourceRollback})
	r.notifier.Broadcast(ChannelCommandFailed, CommandFailure{
		DeviceID: id,
		Command:  cmd.Kind,
		Error:    res.ErrorCode(),
		Detail:   res.Err.Error(),
	})
	return current, res.Err
}

// TurnOn executes an on command.
func (r *Registry) TurnOn(ctx context.Context, id string) (device.Device, error) {
	return r.Execute(ctx, id, On())
}

// TurnOff executes an off command.
func (r *Registry) TurnOff(ctx context.Context, id string) (device.Device, error) {
	return r.Execute(ctx, id, Off())
}

// SetBrightness executes a setBrightness command.
func (r *Registry) SetBrightness(ctx context.Context, id string, percent int) (device.Device, error) {
	return r.Execute(ctx, id, Brightness(percent))
}

// SetColorTemperature executes a setColorTemperature command.
func (r *Registry) SetColorTemperature(ctx context.Context, id string, kelvin int) (device.Device, error) {
	return r.Execute(ctx, id, ColorTemperature(kelvin))
}

// CommandState reports the phase of the latest command sent to a device.
func (r *Registry) CommandState(id string) (CommandStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.devices[id]
	if !ok {
		return CommandStatus{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	return e.status, nil
}
