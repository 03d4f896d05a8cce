package device

// Room groups devices by the room name they carry.
//
// DeviceIDs must only reference devices whose Room equals Name, and
// DeviceCount always equals len(DeviceIDs). AssignRooms restores both.
type Room struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon,omitempty"`
	DeviceIDs   []string `json:"deviceIds"`
	DeviceCount int      `json:"deviceCount"`
	Color       string   `json:"color,omitempty"`
}

// Scene is a named batch of target device states.
type Scene struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	DeviceStates []SceneDeviceState `json:"deviceStates"`
}

// SceneDeviceState is the target for one device in a scene.
type SceneDeviceState struct {
	DeviceID string   `json:"deviceId"`
	Enabled  bool     `json:"enabled"`
	Value    *float64 `json:"value,omitempty"`
}

// UniqueStates returns states with one entry per device. When a device is
// listed more than once the last entry wins, kept at the position of the
// first. The result is a new slice.
func UniqueStates(states []SceneDeviceState) []SceneDeviceState {
	out := make([]SceneDeviceState, 0, len(states))
	at := make(map[string]int, len(states))
	for _, st := range states {
		if i, ok := at[st.DeviceID]; ok {
			out[i] = st
			continue
		}
		at[st.DeviceID] = len(out)
		out = append(out, st)
	}
	return out
}

// AssignRooms recomputes DeviceIDs and DeviceCount of every room from the
// devices' room names. Device order is preserved. Rooms are returned as
// new values; the input slice is not modified.
func AssignRooms(rooms []Room, devices []Device) []Room {
	byName := make(map[string][]string, len(rooms))
	for i := range devices {
		name := devices[i].Room
		byName[name] = append(byName[name], devices[i].ID)
	}

	out := make([]Room, len(rooms))
	for i, r := range rooms {
		ids := byName[r.Name]
		if ids == nil {
			ids = []string{}
		}
		r.DeviceIDs = ids
		r.DeviceCount = len(ids)
		out[i] = r
	}
	return out
}
