// Package ingest feeds telemetry published over MQTT into the reading
// stores.
//
// Devices publish JSON samples on fleet/telemetry/{stream}/{device_id}. The
// Bridge subscribes to every stream, decodes each payload and ingests it
// into the named stream. The device id in the topic is used when the
// payload does not carry one.
//
// Invalid payloads and unknown streams are logged and counted; they never
// stop the subscription.
package ingest
