// Package influxdb writes grow telemetry to InfluxDB v2.
//
// Three measurements are written:
//
//	grow_reading  tags kind, device_id, quantity   field value
//	grow_alert    tags kind, device_id, level      fields value, old, new
//	grow_cycle    tags water_id, outcome           fields duration_s, reading, reason
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteReading(ref, "moisture", 42.5, time.Now())
//
// Writes are non-blocking and batched (batch_size, flush_interval). Failed
// batches are reported to the SetOnError callback.
package influxdb
