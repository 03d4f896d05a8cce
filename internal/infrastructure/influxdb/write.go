package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementTelemetry holds every device reading, tagged by device_id.
const measurementTelemetry = "device_telemetry"

// WriteDeviceTelemetry records numeric readings reported by a device, such
// as power draw or temperature, as one point tagged with the device id.
// Empty field sets are dropped.
//
//	client.WriteDeviceTelemetry("plug-kettle", map[string]float64{"power_w": 2150})
func (c *Client) WriteDeviceTelemetry(deviceID string, fields map[string]float64) {
	if len(fields) == 0 {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		return
	}

	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	c.points.WritePoint(write.NewPoint(
		measurementTelemetry,
		map[string]string{"device_id": deviceID},
		values,
		time.Now(),
	))
}
