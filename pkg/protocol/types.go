// Package protocol holds the gateway wire messages and their JSON codec.
package protocol

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypeMeasurements             MessageType = "measurements"
	TypeEvents                   MessageType = "events"
	TypeCommandUpdate            MessageType = "command_update"
	TypeTransmitBlob             MessageType = "transmit_blob"
	TypeCommandDefinitionsUpdate MessageType = "command_definitions_update"
	TypeFileList                 MessageType = "file_list"

	TypeCommand      MessageType = "command"
	TypeCancel       MessageType = "cancel"
	TypeError        MessageType = "error"
	TypeRateLimit    MessageType = "rate_limit"
	TypeTransit      MessageType = "transit"
	TypeReceivedBlob MessageType = "received_blob"
	TypeHello        MessageType = "hello"
)

// Message is one envelope body. The type tag is written by Encode and is
// not part of the struct.
type Message interface {
	MessageType() MessageType
}

type Measurement struct {
	System    string `json:"system"`
	Subsystem string `json:"subsystem"`
	Metric    string `json:"metric"`
	Value     any    `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

type Measurements struct {
	Measurements []Measurement `json:"measurements"`
}

func (Measurements) MessageType() MessageType { return TypeMeasurements }

type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelNominal EventLevel = "nominal"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

func (l EventLevel) valid() bool {
	switch l {
	case LevelDebug, LevelNominal, LevelWarning, LevelError:
		return true
	}
	return false
}

type Event struct {
	System    string     `json:"system,omitempty"`
	Type      string     `json:"type"`
	CommandID *int64     `json:"command_id,omitempty"`
	Debug     string     `json:"debug,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp int64      `json:"timestamp"`
}

type Events struct {
	Events []Event `json:"events"`
}

func (Events) MessageType() MessageType { return TypeEvents }

type CommandState string

const (
	StateQueued                CommandState = "queued"
	StateWaitingForGateway     CommandState = "waiting_for_gateway"
	StateSentToGateway         CommandState = "sent_to_gateway"
	StatePreparingOnGateway    CommandState = "preparing_on_gateway"
	StateUplinkingToSystem     CommandState = "uplinking_to_system"
	StateTransmittedToSystem   CommandState = "transmitted_to_system"
	StateAckedBySystem         CommandState = "acked_by_system"
	StateExecutingOnSystem     CommandState = "executing_on_system"
	StateDownlinkingFromSystem CommandState = "downlinking_from_system"
	StateProcessingOnGateway   CommandState = "processing_on_gateway"
	StateCancelled             CommandState = "cancelled"
	StateCompleted             CommandState = "completed"
	StateFailed                CommandState = "failed"
)

var commandStates = map[CommandState]struct{}{
	StateQueued: {}, StateWaitingForGateway: {}, StateSentToGateway: {},
	StatePreparingOnGateway: {}, StateUplinkingToSystem: {}, StateTransmittedToSystem: {},
	StateAckedBySystem: {}, StateExecutingOnSystem: {}, StateDownlinkingFromSystem: {},
	StateProcessingOnGateway: {}, StateCancelled: {}, StateCompleted: {}, StateFailed: {},
}

// Terminal reports whether no further updates are expected after s.
func (s CommandState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CommandStatus is the "command" object of a command_update. Output, Errors
// and Payload are the fields the gateway helpers write; anything else (for
// example progress_1_current) travels in Extra.
type CommandStatus struct {
	ID      int64
	State   CommandState
	Output  *string
	Errors  []string
	Payload *string
	Extra   map[string]any
}

var reservedStatusKeys = map[string]struct{}{
	"id": {}, "state": {}, "output": {}, "errors": {}, "payload": {},
}

func (c CommandStatus) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+5)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["id"] = c.ID
	out["state"] = c.State
	if c.Output != nil {
		out["output"] = *c.Output
	}
	if c.Errors != nil {
		out["errors"] = c.Errors
	}
	if c.Payload != nil {
		out["payload"] = *c.Payload
	}
	return json.Marshal(out)
}

func (c *CommandStatus) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var status CommandStatus
	for key, value := range raw {
		var err error
		switch key {
		case "id":
			err = json.Unmarshal(value, &status.ID)
		case "state":
			err = json.Unmarshal(value, &status.State)
		case "output":
			err = json.Unmarshal(value, &status.Output)
		case "errors":
			err = json.Unmarshal(value, &status.Errors)
		case "payload":
			err = json.Unmarshal(value, &status.Payload)
		default:
			var v any
			if err = unmarshal(value, &v); err == nil {
				if status.Extra == nil {
					status.Extra = make(map[string]any)
				}
				status.Extra[key] = v
			}
		}
		if err != nil {
			return fmt.Errorf("command field %q: %w", key, err)
		}
	}
	*c = status
	return nil
}

type CommandUpdate struct {
	Command CommandStatus `json:"command"`
}

func (CommandUpdate) MessageType() MessageType { return TypeCommandUpdate }

// TransmitBlob carries bytes bound for a system through a ground station
// network. Blob is written as standard base64 inside a UTF-8 JSON string.
type TransmitBlob struct {
	Context map[string]any `json:"context"`
	Blob    []byte         `json:"blob"`
}

func (TransmitBlob) MessageType() MessageType { return TypeTransmitBlob }

type CommandDefinitionField struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Range []any    `json:"range,omitempty"`
	Enum  []string `json:"enum,omitempty"`
}

type CommandDefinition struct {
	DisplayName string                   `json:"display_name"`
	Description string                   `json:"description,omitempty"`
	Fields      []CommandDefinitionField `json:"fields"`
}

type CommandDefinitions struct {
	System      string                       `json:"system"`
	Definitions map[string]CommandDefinition `json:"definitions"`
}

type CommandDefinitionsUpdate struct {
	CommandDefinitions CommandDefinitions `json:"command_definitions"`
}

func (CommandDefinitionsUpdate) MessageType() MessageType { return TypeCommandDefinitionsUpdate }

type FileData struct {
	Name      string         `json:"name"`
	Size      int64          `json:"size"`
	Timestamp int64          `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type FileListing struct {
	System    string     `json:"system"`
	Timestamp int64      `json:"timestamp"`
	Files     []FileData `json:"files"`
}

type FileList struct {
	FileList FileListing `json:"file_list"`
}

func (FileList) MessageType() MessageType { return TypeFileList }

type CommandField struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Command is a server-issued instruction for one system.
type Command struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`
	System    string         `json:"system"`
	RawFields []CommandField `json:"fields"`
}

// Fields returns the command arguments keyed by field name. Numeric
// arguments are json.Number.
func (c Command) Fields() map[string]any {
	fields := make(map[string]any, len(c.RawFields))
	for _, f := range c.RawFields {
		fields[f.Name] = f.Value
	}
	return fields
}

func (c Command) Field(name string) (any, bool) {
	for _, f := range c.RawFields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

type CommandMessage struct {
	Command Command `json:"command"`
}

func (CommandMessage) MessageType() MessageType { return TypeCommand }

type CommandRef struct {
	ID int64 `json:"id"`
}

type Cancel struct {
	Timestamp int64      `json:"timestamp,omitempty"`
	Command   CommandRef `json:"command"`
}

func (Cancel) MessageType() MessageType { return TypeCancel }

type ServerError struct {
	Error string `json:"error"`
}

func (ServerError) MessageType() MessageType { return TypeError }

type RateLimit struct {
	RateLimit  int64  `json:"rate_limit"`
	RetryAfter int64  `json:"retry_after"`
	Error      string `json:"error,omitempty"`
}

func (RateLimit) MessageType() MessageType { return TypeRateLimit }

// Transit announces an upcoming ground station pass.
type Transit struct {
	SatelliteName           string  `json:"satellite_name"`
	SatelliteID             int64   `json:"satellite_id"`
	TransitID               int64   `json:"transit_id"`
	GroundStationName       string  `json:"ground_station_name"`
	GroundStationID         int64   `json:"ground_station_id"`
	ApproximateStart        string  `json:"approximate_start"`
	ApproximateEnd          string  `json:"approximate_end"`
	ApproximateDuration     float64 `json:"approximate_duration"`
	ApproximateMinAzimuth   float64 `json:"approximate_min_azimuth"`
	ApproximateMaxAzimuth   float64 `json:"approximate_max_azimuth"`
	ApproximateApexAzimuth  float64 `json:"approximate_apex_azimuth"`
	ApproximateMaxElevation float64 `json:"approximate_max_elevation"`
	ApproximateStartLat     float64 `json:"approximate_start_latitude"`
	ApproximateStartLon     float64 `json:"approximate_start_longitude"`
	ApproximateStartAlt     float64 `json:"approximate_start_altitude"`
	ApproximateEndLat       float64 `json:"approximate_end_latitude"`
	ApproximateEndLon       float64 `json:"approximate_end_longitude"`
	ApproximateEndAlt       float64 `json:"approximate_end_altitude"`
}

func (Transit) MessageType() MessageType { return TypeTransit }

type BlobContext struct {
	Version int64  `json:"version"`
	Bytes   int64  `json:"bytes"`
	System  string `json:"system"`
	Seq     int64  `json:"seq"`
}

// ReceivedBlob carries bytes downlinked from a system. A missing or empty
// "blob" key decodes to an empty Blob.
type ReceivedBlob struct {
	Blob    []byte      `json:"blob"`
	Time    string      `json:"time,omitempty"`
	Context BlobContext `json:"context"`
}

func (ReceivedBlob) MessageType() MessageType { return TypeReceivedBlob }

type HelloInfo struct {
	Mission string `json:"mission"`
}

type Hello struct {
	Hello HelloInfo `json:"hello"`
}

func (Hello) MessageType() MessageType { return TypeHello }

// Unknown is a well-formed envelope whose type the gateway does not model.
// Raw is the complete frame.
type Unknown struct {
	Type MessageType
	Raw  json.RawMessage
}

func (u Unknown) MessageType() MessageType { return u.Type }
