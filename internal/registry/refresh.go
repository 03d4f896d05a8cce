package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
)

// refreshParallelism bounds concurrent GetState calls in RefreshAll.
const refreshParallelism = 8

// Refresh reads the device state from its adapter and merges it into the
// registry. While a command is in flight the reported state updates the
// confirmed baseline and only reachability is applied to the optimistic
// state. A failed read only updates reachability.
func (r *Registry) Refresh(ctx context.Context, id string) (device.Device, error) {
	d, err := r.Device(id)
	if err != nil {
		return device.Device{}, err
	}
	a, err := r.adapterFor(d.Protocol)
	if err != nil {
		return d, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	res := adapter.Call(func() adapter.Result { return a.GetState(callCtx, &d) })
	cancel()

	r.mu.Lock()
	e, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return device.Device{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	if res.NewState != nil {
		switch {
		case !res.Success:
			res.NewState.HealthOnly().Apply(e.dev)
		case e.slot != nil:
			res.NewState.Apply(e.slot.baseline)
			res.NewState.HealthOnly().Apply(e.dev)
		default:
			res.NewState.Apply(e.dev)
		}
		r.persistDevicesLocked()
	}
	current := *e.dev.DeepCopy()
	r.mu.Unlock()

	if res.NewState != nil {
		r.notifier.Broadcast(ChannelDeviceStateChanged, StateChange{Device: current, Source: SourceRefresh})
	}
	if !res.Success {
		if res.Err == nil {
			res.Err = fmt.Errorf("%w: adapter reported failure without an error", adapter.ErrProtocol)
		}
		return current, res.Err
	}
	return current, nil
}

// RefreshAll refreshes every device in parallel.
// MQTT devices report their own state and are skipped. Per-device failures
// are joined into the returned error.
func (r *Registry) RefreshAll(ctx context.Context) error {
	var ids []string
	r.mu.RLock()
	for _, id := range r.order {
		if r.devices[id].dev.Protocol != device.ProtocolMQTT {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	errs := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshParallelism)
	for i, id := range ids {
		g.Go(func() error {
			if _, err := r.Refresh(gctx, id); err != nil {
				errs[i] = fmt.Errorf("%s: %w", id, err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Errors are collected per device
	return errors.Join(errs...)
}

// Poll refreshes all devices every interval until ctx ends.
func (r *Registry) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RefreshAll(ctx); err != nil && ctx.Err() == nil {
				r.logger.Debug("device poll had failures", "error", err)
			}
		}
	}
}

// DiscoverHue adds the bridge's lights that the registry does not know yet
// and returns how many were added.
func (r *Registry) DiscoverHue(ctx context.Context) (int, error) {
	if r.hue == nil {
		return 0, ErrNoHueBridge
	}
	lights, err := r.hue.ListLights(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing hue lights: %w", err)
	}

	var added []device.Device
	r.mu.Lock()
	for i := range lights {
		d := lights[i]
		if _, ok := r.devices[d.ID]; ok {
			continue
		}
		device.Normalize(&d)
		if err := device.ValidateDevice(&d); err != nil {
			r.logger.Warn("skipping discovered hue light", "id", d.ID, "error", err)
			continue
		}
		d.LastSeen = device.Time(r.now())
		r.addLocked(&d)
		added = append(added, *d.DeepCopy())
	}
	if len(added) > 0 {
		r.persistDevicesLocked()
		r.persistRoomsLocked()
	}
	r.mu.Unlock()

	for _, d := range added {
		r.notifier.Broadcast(ChannelDeviceStateChanged, StateChange{Device: d, Source: SourceDiscovery})
	}
	r.logger.Info("hue discovery finished", "found", len(lights), "added", len(added))
	return len(added), nil
}
