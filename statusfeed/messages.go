package statusfeed

import (
	"encoding/json"
)

// Message types.
const (
	TypeStatus   = "status"
	TypeStarted  = "started"
	TypeProgress = "progress"
	TypeStopped  = "stopped"
)

// Message is one frame on the feed.
type Message struct {
	Type  string      `json:"type"`
	JobID string      `json:"job_id,omitempty"`
	Data  interface{} `json:"data"`
}

func (m *Message) UnmarshalJSON(b []byte) error {
	// Unmarshal into an anonymous type to avoid infinite recursion
	var temp struct {
		Type  string          `json:"type"`
		JobID string          `json:"job_id"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	m.Type = temp.Type
	m.JobID = temp.JobID

	// Determine the type of Data and unmarshal it accordingly
	switch m.Type {
	case TypeStatus:
		m.Data = &DataStatus{}
	case TypeStarted:
		m.Data = &DataStarted{}
	case TypeProgress:
		m.Data = &DataProgress{}
	case TypeStopped:
		m.Data = &DataStopped{}
	default:
		m.Data = nil
	}

	if m.Data != nil && len(temp.Data) != 0 {
		if err := json.Unmarshal(temp.Data, m.Data); err != nil {
			return err
		}
	}
	return nil
}

// DataStatus describes the state of the add-on as a whole.
type DataStatus struct {
	Environment string `json:"environment"` // environment state, e.g. "ready"
	QueueLength int    `json:"queue_length"`
}

/*
{"type": "status", "data": {"environment": "ready", "queue_length": 0}}
*/

type DataStarted struct {
	Name      string `json:"name"`
	Operation string `json:"operation"`
}

/*
{"type": "started", "job_id": "0b6e...", "data": {"name": "rust1", "operation": "text2img"}}
*/

type DataProgress struct {
	Value int    `json:"value"`
	Max   int    `json:"max"`
	Label string `json:"label,omitempty"`
}

/*
{"type": "progress", "job_id": "0b6e...", "data": {"value": 2, "max": 7, "label": "Installing diffusers==0.25.0 [2/7]"}}
*/

type DataStopped struct {
	Material string `json:"material,omitempty"`
	Error    string `json:"error,omitempty"`
	// ErrorKind is the Go type of the error, e.g. "*bridge.ExecutionError".
	ErrorKind string `json:"error_kind,omitempty"`
}

/*
{"type": "stopped", "job_id": "0b6e...", "data": {"material": "M_MF_rust1"}}
{"type": "stopped", "job_id": "0b6e...", "data": {"error": "text2img: exit code 1: CUDA not found", "error_kind": "*bridge.ExecutionError"}}
*/
