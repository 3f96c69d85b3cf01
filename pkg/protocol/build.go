package protocol

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

const (
	DefaultEventType = "Gateway Event"
	// DefaultTransmittedPayload is reported when a transmitted_to_system
	// update carries no payload description.
	DefaultTransmittedPayload = "None Provided"
)

// NowMillis is the timestamp source for defaulted fields.
var NowMillis = func() int64 { return time.Now().UnixMilli() }

// NewMeasurements validates ms and fills missing timestamps.
func NewMeasurements(ms []Measurement) (Measurements, error) {
	if len(ms) == 0 {
		return Measurements{}, invalid("measurements", "at least one measurement is required")
	}
	out := make([]Measurement, len(ms))
	for i, m := range ms {
		switch {
		case m.System == "":
			return Measurements{}, invalid(indexed("measurements", i, "system"), "required")
		case m.Subsystem == "":
			return Measurements{}, invalid(indexed("measurements", i, "subsystem"), "required")
		case m.Metric == "":
			return Measurements{}, invalid(indexed("measurements", i, "metric"), "required")
		}
		field := indexed("measurements", i, "value")
		if err := checkScalar(field, m.Value); err != nil {
			return Measurements{}, err
		}
		v, err := canonical(field, m.Value)
		if err != nil {
			return Measurements{}, err
		}
		m.Value = v
		if m.Timestamp < 0 {
			return Measurements{}, invalid(indexed("measurements", i, "timestamp"), "must not be negative")
		}
		if m.Timestamp == 0 {
			m.Timestamp = NowMillis()
		}
		out[i] = m
	}
	return Measurements{Measurements: out}, nil
}

// NewEvents validates events and applies the type, level and timestamp
// defaults.
func NewEvents(events []Event) (Events, error) {
	if len(events) == 0 {
		return Events{}, invalid("events", "at least one event is required")
	}
	out := make([]Event, len(events))
	for i, e := range events {
		if e.Message == "" {
			return Events{}, invalid(indexed("events", i, "message"), "required")
		}
		if e.Type == "" {
			e.Type = DefaultEventType
		}
		if e.Level == "" {
			e.Level = LevelNominal
		}
		if !e.Level.valid() {
			return Events{}, invalid(indexed("events", i, "level"), "unknown level %q", e.Level)
		}
		if e.Timestamp < 0 {
			return Events{}, invalid(indexed("events", i, "timestamp"), "must not be negative")
		}
		if e.Timestamp == 0 {
			e.Timestamp = NowMillis()
		}
		out[i] = e
	}
	return Events{Events: out}, nil
}

// NewCommandUpdate builds a command_update. The output, errors and payload
// keys of extra are lifted into their typed fields; id and state are
// rejected.
func NewCommandUpdate(id int64, state CommandState, extra map[string]any) (CommandUpdate, error) {
	if id <= 0 {
		return CommandUpdate{}, invalid("command.id", "must be positive, got %d", id)
	}
	if _, ok := commandStates[state]; !ok {
		return CommandUpdate{}, invalid("command.state", "unknown state %q", state)
	}

	status := CommandStatus{ID: id, State: state}
	for key, value := range extra {
		field := "command." + key
		switch key {
		case "id", "state":
			return CommandUpdate{}, invalid(field, "cannot be set through extra fields")
		case "output":
			s, ok := value.(string)
			if !ok {
				return CommandUpdate{}, invalid(field, "must be a string")
			}
			status.Output = &s
		case "payload":
			s, ok := value.(string)
			if !ok {
				return CommandUpdate{}, invalid(field, "must be a string")
			}
			status.Payload = &s
		case "errors":
			errs, err := stringList(field, value)
			if err != nil {
				return CommandUpdate{}, err
			}
			status.Errors = errs
		default:
			v, err := canonical(field, value)
			if err != nil {
				return CommandUpdate{}, err
			}
			if status.Extra == nil {
				status.Extra = make(map[string]any, len(extra))
			}
			status.Extra[key] = v
		}
	}
	return CommandUpdate{Command: status}, nil
}

func CompleteCommand(id int64, output string) (CommandUpdate, error) {
	return NewCommandUpdate(id, StateCompleted, map[string]any{"output": output})
}

// FailCommand requires at least one non-empty error string.
func FailCommand(id int64, errs []string) (CommandUpdate, error) {
	if len(errs) == 0 {
		return CommandUpdate{}, invalid("command.errors", "at least one error is required")
	}
	return NewCommandUpdate(id, StateFailed, map[string]any{"errors": errs})
}

func CancelCommand(id int64) (CommandUpdate, error) {
	return NewCommandUpdate(id, StateCancelled, nil)
}

func TransmittedCommand(id int64, payload string) (CommandUpdate, error) {
	if payload == "" {
		payload = DefaultTransmittedPayload
	}
	return NewCommandUpdate(id, StateTransmittedToSystem, map[string]any{"payload": payload})
}

func NewTransmitBlob(blob []byte, context map[string]any) (TransmitBlob, error) {
	if context == nil {
		context = map[string]any{}
	}
	context, err := canonical("context", context)
	if err != nil {
		return TransmitBlob{}, err
	}
	if blob == nil {
		blob = []byte{}
	}
	return TransmitBlob{Context: context, Blob: blob}, nil
}

func NewCommandDefinitionsUpdate(system string, definitions map[string]CommandDefinition) (CommandDefinitionsUpdate, error) {
	if system == "" {
		return CommandDefinitionsUpdate{}, invalid("command_definitions.system", "required")
	}
	out := make(map[string]CommandDefinition, len(definitions))
	for name, def := range definitions {
		field := "command_definitions.definitions." + name
		if name == "" {
			return CommandDefinitionsUpdate{}, invalid("command_definitions.definitions", "command name must not be empty")
		}
		if def.DisplayName == "" {
			return CommandDefinitionsUpdate{}, invalid(field+".display_name", "required")
		}
		for i, f := range def.Fields {
			if f.Name == "" || f.Type == "" {
				return CommandDefinitionsUpdate{}, invalid(indexed(field+".fields", i, "name"), "fields need a name and a type")
			}
		}
		canon, err := canonical(field, def)
		if err != nil {
			return CommandDefinitionsUpdate{}, err
		}
		out[name] = canon
	}
	return CommandDefinitionsUpdate{CommandDefinitions: CommandDefinitions{System: system, Definitions: out}}, nil
}

// NewFileList describes files available on system. A zero timestamp means now.
func NewFileList(system string, files []FileData, timestamp int64) (FileList, error) {
	if system == "" {
		return FileList{}, invalid("file_list.system", "required")
	}
	if timestamp == 0 {
		timestamp = NowMillis()
	}
	out := make([]FileData, len(files))
	for i, f := range files {
		if f.Name == "" {
			return FileList{}, invalid(indexed("file_list.files", i, "name"), "required")
		}
		if f.Size < 0 {
			return FileList{}, invalid(indexed("file_list.files", i, "size"), "must not be negative")
		}
		meta, err := canonical(indexed("file_list.files", i, "metadata"), f.Metadata)
		if err != nil {
			return FileList{}, err
		}
		f.Metadata = meta
		out[i] = f
	}
	return FileList{FileList: FileListing{System: system, Timestamp: timestamp, Files: out}}, nil
}

func indexed(list string, i int, field string) string {
	return list + "[" + strconv.Itoa(i) + "]." + field
}

func checkScalar(field string, v any) error {
	switch x := v.(type) {
	case nil:
		return invalid(field, "required")
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return invalid(field, "must be a finite number")
		}
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return invalid(field, "must be a finite number")
		}
		return nil
	default:
		return invalid(field, "must be a number, string or boolean, got %T", v)
	}
}

// canonical passes v through the wire encoding, so a message built here
// equals the same message decoded off the wire. Numbers in untyped values
// come back as json.Number.
func canonical[T any](field string, v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, invalid(field, "not representable as JSON: %v", err)
	}
	if err := unmarshal(data, &out); err != nil {
		return out, invalid(field, "not representable as JSON: %v", err)
	}
	return out, nil
}

func stringList(field string, v any) ([]string, error) {
	var list []string
	switch x := v.(type) {
	case []string:
		list = x
	case []any:
		list = make([]string, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, invalid(field, "must be a list of strings")
			}
			list[i] = s
		}
	default:
		return nil, invalid(field, "must be a list of strings")
	}
	for _, s := range list {
		if s == "" {
			return nil, invalid(field, "must not contain empty strings")
		}
	}
	return append([]string(nil), list...), nil
}
