package registry

import (
	"fmt"
	"slices"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
)

// Rooms returns every room with DeviceIDs and DeviceCount derived from the
// current devices.
func (r *Registry) Rooms() []device.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return device.AssignRooms(r.rooms, r.currentDevicesLocked())
}

// PutRoom validates and stores room, replacing a room with the same id.
// Client-supplied DeviceIDs and DeviceCount are ignored.
func (r *Registry) PutRoom(room device.Room) (device.Room, error) {
	if err := device.ValidateRoom(&room); err != nil {
		return device.Room{}, fmt.Errorf("%w: %w", adapter.ErrValidation, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.roomIndexLocked(room.ID); i >= 0 {
		r.rooms[i] = room
	} else {
		r.rooms = append(r.rooms, room)
	}
	r.persistRoomsLocked()

	assigned := device.AssignRooms([]device.Room{room}, r.currentDevicesLocked())
	return assigned[0], nil
}

// DeleteRoom removes a room. Its devices keep their room name.
func (r *Registry) DeleteRoom(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.roomIndexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", device.ErrRoomNotFound, id)
	}
	r.rooms = slices.Delete(r.rooms, i, i+1)
	r.persistRoomsLocked()
	return nil
}

func (r *Registry) roomIndexLocked(id string) int {
	return slices.IndexFunc(r.rooms, func(room device.Room) bool { return room.ID == id })
}

func (r *Registry) currentDevicesLocked() []device.Device {
	out := make([]device.Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.devices[id].dev)
	}
	return out
}
