// Package influxdb mirrors accepted telemetry readings into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. The in-memory
// telemetry stores stay authoritative; InfluxDB keeps the long-term copy
// that the bounded ring buffers evict.
//
// # Data model
//
// Every reading becomes one point in the "readings" measurement:
//
//	readings,stream=soil,device_id=sm-001 soil_moisture=41.2,temperature=24.1 <timestamp>
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	streams.Subscribe(client) // every stored reading is written
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched per the batch_size and flush_interval settings; asynchronous
// write errors are delivered to the SetOnError callback.
package influxdb
