// Package influxdb records device telemetry in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Writes are
// non-blocking and batched according to influxdb.batch_size and
// influxdb.flush_interval; a disabled or unreachable server never slows
// down device control.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteDeviceTelemetry("plug-kettle", map[string]float64{"power_w": 2150})
package influxdb
