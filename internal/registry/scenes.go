package registry

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
)

// sceneParallelism bounds concurrent device commands during activation.
const sceneParallelism = 8

// SceneResult reports what activating a scene did to each referenced
// device. Unknown device ids are skipped, not treated as failures.
type SceneResult struct {
	SceneID string            `json:"sceneId"`
	Applied []string          `json:"applied"`
	Skipped []string          `json:"skipped"`
	Failed  map[string]string `json:"failed"`
}

// Scenes returns every scene.
func (r *Registry) Scenes() []device.Scene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.scenes)
}

// Scene returns one scene.
func (r *Registry) Scene(id string) (device.Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.sceneIndexLocked(id)
	if i < 0 {
		return device.Scene{}, fmt.Errorf("%w: %s", device.ErrSceneNotFound, id)
	}
	return r.scenes[i], nil
}

// PutScene validates and stores s, replacing a scene with the same id.
// A device listed more than once keeps only its last target.
func (r *Registry) PutScene(s device.Scene) (device.Scene, error) {
	if err := device.ValidateScene(&s); err != nil {
		return device.Scene{}, fmt.Errorf("%w: %w", adapter.ErrValidation, err)
	}
	s.DeviceStates = device.UniqueStates(s.DeviceStates)

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.sceneIndexLocked(s.ID); i >= 0 {
		r.scenes[i] = s
	} else {
		r.scenes = append(r.scenes, s)
	}
	r.persistScenesLocked()
	return s, nil
}

// DeleteScene removes a scene.
func (r *Registry) DeleteScene(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.sceneIndexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", device.ErrSceneNotFound, id)
	}
	r.scenes = slices.Delete(r.scenes, i, i+1)
	r.persistScenesLocked()
	return nil
}

func (r *Registry) sceneIndexLocked(id string) int {
	return slices.IndexFunc(r.scenes, func(s device.Scene) bool { return s.ID == id })
}

// ActivateScene drives every device in the scene to its target state.
//
// Devices are commanded concurrently, each through Execute, so the usual
// optimistic update and rollback apply per device. A device that is off in
// the scene gets an off command; one that is on with a value gets on
// followed by setBrightness when it can dim, otherwise just on. Each device
// gets one target even if a stored scene lists it twice.
func (r *Registry) ActivateScene(ctx context.Context, id string) (SceneResult, error) {
	scene, err := r.Scene(id)
	if err != nil {
		return SceneResult{}, err
	}

	result := SceneResult{SceneID: id, Applied: []string{}, Skipped: []string{}, Failed: map[string]string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sceneParallelism)

	for _, target := range device.UniqueStates(scene.DeviceStates) {
		d, err := r.Device(target.DeviceID)
		if err != nil {
			result.Skipped = append(result.Skipped, target.DeviceID)
			continue
		}

		g.Go(func() error {
			err := r.applySceneState(gctx, d, target)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[target.DeviceID] = adapter.Code(err)
				return nil
			}
			result.Applied = append(result.Applied, target.DeviceID)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Per-device failures are collected in result

	slices.Sort(result.Applied)
	r.logger.Info("scene activated", "scene_id", id,
		"applied", len(result.Applied), "skipped", len(result.Skipped), "failed", len(result.Failed))
	r.notifier.Broadcast(ChannelSceneActivated, result)
	return result, nil
}

func (r *Registry) applySceneState(ctx context.Context, d device.Device, target device.SceneDeviceState) error {
	if !target.Enabled {
		_, err := r.Execute(ctx, d.ID, Off())
		return err
	}
	if _, err := r.Execute(ctx, d.ID, On()); err != nil {
		return err
	}
	if target.Value == nil || !d.HasCapability(device.CapabilityDimming) {
		return nil
	}
	_, err := r.Execute(ctx, d.ID, Brightness(int(math.Round(*target.Value))))
	return err
}
