package buttplug

import "encoding/json"

// messageVersion is the Buttplug protocol spec version spoken by the client.
const messageVersion = 3

type requestServerInfo struct {
	ID             uint32 `json:"Id"`
	ClientName     string `json:"ClientName"`
	MessageVersion int    `json:"MessageVersion"`
}

type serverInfo struct {
	ID             uint32 `json:"Id"`
	ServerName     string `json:"ServerName"`
	MessageVersion int    `json:"MessageVersion"`
	MaxPingTime    int    `json:"MaxPingTime"`
}

type idOnly struct {
	ID uint32 `json:"Id"`
}

type errorMsg struct {
	ID           uint32 `json:"Id"`
	ErrorMessage string `json:"ErrorMessage"`
	ErrorCode    int    `json:"ErrorCode"`
}

type deviceList struct {
	ID      uint32       `json:"Id"`
	Devices []deviceInfo `json:"Devices"`
}

type deviceInfo struct {
	DeviceName     string         `json:"DeviceName"`
	DeviceIndex    int            `json:"DeviceIndex"`
	DeviceMessages deviceMessages `json:"DeviceMessages"`
}

type deviceAdded struct {
	ID uint32 `json:"Id"`
	deviceInfo
}

type deviceRemoved struct {
	ID          uint32 `json:"Id"`
	DeviceIndex int    `json:"DeviceIndex"`
}

type deviceMessages struct {
	ScalarCmd     []actuatorAttrs `json:"ScalarCmd,omitempty"`
	LinearCmd     []actuatorAttrs `json:"LinearCmd,omitempty"`
	RotateCmd     []actuatorAttrs `json:"RotateCmd,omitempty"`
	SensorReadCmd []sensorAttrs   `json:"SensorReadCmd,omitempty"`
}

type actuatorAttrs struct {
	FeatureDescriptor string `json:"FeatureDescriptor,omitempty"`
	StepCount         int    `json:"StepCount"`
	ActuatorType      string `json:"ActuatorType,omitempty"`
}

type sensorAttrs struct {
	FeatureDescriptor string  `json:"FeatureDescriptor,omitempty"`
	SensorType        string  `json:"SensorType"`
	SensorRange       [][]int `json:"SensorRange"`
}

type scalarCmd struct {
	ID          uint32   `json:"Id"`
	DeviceIndex int      `json:"DeviceIndex"`
	Scalars     []scalar `json:"Scalars"`
}

type scalar struct {
	Index        int     `json:"Index"`
	Scalar       float64 `json:"Scalar"`
	ActuatorType string  `json:"ActuatorType"`
}

type linearCmd struct {
	ID          uint32   `json:"Id"`
	DeviceIndex int      `json:"DeviceIndex"`
	Vectors     []vector `json:"Vectors"`
}

type vector struct {
	Index    int     `json:"Index"`
	Duration int     `json:"Duration"`
	Position float64 `json:"Position"`
}

type rotateCmd struct {
	ID          uint32     `json:"Id"`
	DeviceIndex int        `json:"DeviceIndex"`
	Rotations   []rotation `json:"Rotations"`
}

type rotation struct {
	Index     int     `json:"Index"`
	Speed     float64 `json:"Speed"`
	Clockwise bool    `json:"Clockwise"`
}

type sensorReadCmd struct {
	ID          uint32 `json:"Id"`
	DeviceIndex int    `json:"DeviceIndex"`
	SensorIndex int    `json:"SensorIndex"`
	SensorType  string `json:"SensorType"`
}

type sensorReading struct {
	ID          uint32 `json:"Id"`
	DeviceIndex int    `json:"DeviceIndex"`
	SensorIndex int    `json:"SensorIndex"`
	SensorType  string `json:"SensorType"`
	Data        []int  `json:"Data"`
}

// envelope is one element of a message array: a single key naming the
// message type.
type envelope map[string]json.RawMessage

func encode(typ string, msg any) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]envelope{{typ: raw}})
}
