package ingest

import (
	"encoding/json"
	"errors"
	"time"

	"wellwatch/internal/model"
)

var errMissingDevice = errors.New("missing device_id")

// DecodeEvent parses one telemetry JSON object. A missing timestamp is
// stamped with the arrival time; full validation happens in the pipeline.
func DecodeEvent(raw []byte) (model.TelemetryEvent, error) {
	var ev model.TelemetryEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return model.TelemetryEvent{}, err
	}
	if ev.DeviceID == "" {
		return model.TelemetryEvent{}, errMissingDevice
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	}
	return ev, nil
}
