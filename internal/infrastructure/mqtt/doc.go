// Package mqtt provides MQTT client connectivity for the fleet service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Subscriptions to device telemetry, restored after reconnects
//   - Publishing commands to devices
//   - Last Will and Testament (LWT) for offline detection
//
// # Topic hierarchy
//
//	fleet/telemetry/{stream}/{device_id}   readings from field devices
//	fleet/command/{device_id}              commands to devices
//	fleet/system/status                    retained service status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTelemetry(), client.QoS(),
//	    func(topic string, payload []byte) error {
//	        stream, deviceID, _ := mqtt.ParseTelemetryTopic(topic)
//	        ...
//	    })
//
// Tests that need a running broker carry the integration build tag:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...
package mqtt
