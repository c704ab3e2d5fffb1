package pipeline

import (
	"context"
	"encoding/json"

	"github.com/cloupeer-io/otaupdate/pkg/log"
	"github.com/cloupeer-io/otaupdate/pkg/mqtt"
	"github.com/cloupeer-io/otaupdate/pkg/mqtt/topic"
)

// progressMessage is the JSON payload published to the OTA progress topic.
type progressMessage struct {
	Active  bool   `json:"active"`
	Current uint64 `json:"current"`
	Total   uint64 `json:"total"`
}

// MqttDelegate publishes DownloadAction progress to the OTA progress topic
// so a fleet operator can observe an in-flight update the same way it
// observes registration and command-ack traffic.
type MqttDelegate struct {
	client    mqtt.Client
	topic     string
	vehicleID string
}

// NewMqttDelegate builds a Delegate publishing to {topicRoot}/ota/progress/{vehicleID}.
func NewMqttDelegate(client mqtt.Client, topicRoot, vehicleID string) *MqttDelegate {
	b := topic.NewTopicBuilder(topicRoot)
	return &MqttDelegate{
		client:    client,
		topic:     b.OTAProgress(vehicleID),
		vehicleID: vehicleID,
	}
}

// SetDownloadStatus implements Delegate.
func (d *MqttDelegate) SetDownloadStatus(active bool) {
	d.publish(progressMessage{Active: active})
}

// BytesReceived implements Delegate.
func (d *MqttDelegate) BytesReceived(current, total uint64) {
	d.publish(progressMessage{Active: true, Current: current, Total: total})
}

func (d *MqttDelegate) publish(msg progressMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error(err, "marshal ota progress message failed")
		return
	}
	// QoS 0, no retain: progress is a live stream, not state a late
	// subscriber needs to catch up on.
	if err := d.client.Publish(context.Background(), d.topic, 0, false, payload); err != nil {
		log.Error(err, "publish ota progress failed", "topic", d.topic)
	}
}
