// Package mqtt provides the MQTT client used by the grow controller.
//
// MQTT is the link between the controller and the hardware: sensor nodes
// publish readings, actuator nodes receive commands and acknowledge them,
// and the controller publishes its events and site status for anything
// that wants to watch.
//
//	controller <-> broker <-> sensor / actuator nodes
//
// This package manages:
//   - Connection with a retried first connect and paho auto-reconnect
//   - Publishing with topic, QoS and payload size validation
//   - Subscriptions that survive reconnects
//   - Last Will and Testament on grow/system/availability
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSensors(), 1,
//	    func(topic string, payload []byte) error {
//	        _, ref, err := mqtt.ParseDeviceTopic(topic)
//	        ...
//	    })
package mqtt
