package rui

import (
	"encoding/json"
	"fmt"
)

// Wire layer of the update protocol. All messages are json over the single
// persistent socket, except the raw binary chunk frames of the upload
// sub-protocol, which immediately precede their `continue` metadata frame.

const (
	OpcodeContinue = "continue"
	OpcodeFinished = "finished"
)

const (
	UpdateTypeBase64     = "base64"
	UpdateTypeJavascript = "javascript"
)

// sent once per connection open
type InitializeMessage struct {
	Initialize string `json:"initialize"`
	Args       string `json:"args"`
	Title      string `json:"title"`
}

type CallPayload struct {
	Function string         `json:"function"`
	Args     map[string]any `json:"args"`
	Id       string         `json:"id"`
}

type CallMessage struct {
	Call CallPayload `json:"call"`
}

// ChunkMessage describes the binary frame sent just before it, associating
// the payload retroactively. `Size` is the total file size, constant across
// the chunks of one file. `Source` names the logical input reference so the
// server can correlate concurrently streamed multi-file selections.
type ChunkMessage struct {
	Opcode    string `json:"opcode"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Sequence  int    `json:"sequence"`
	ChunkSize int64  `json:"chunk_size"`
	Source    string `json:"source"`
}

// one per selection, after the last chunk of the last file
type FinishMessage struct {
	Opcode string `json:"opcode"`
	Volume int    `json:"volume"`
	Source string `json:"source"`
}

type UpdateOperation struct {
	Target string `json:"target"`
	Value  any    `json:"value"`
	Type   string `json:"type,omitempty"`
	Opcode string `json:"opcode,omitempty"`
}

type UpdateMessage struct {
	Update []*UpdateOperation `json:"update"`
	Event  string             `json:"event,omitempty"`
}

func EncodeMessage(message any) ([]byte, error) {
	switch message.(type) {
	case *InitializeMessage, *CallMessage, *ChunkMessage, *FinishMessage, *UpdateMessage:
		return json.Marshal(message)
	default:
		return nil, fmt.Errorf("Unknown message type: %T", message)
	}
}

func RequireEncodeMessage(message any) []byte {
	b, err := EncodeMessage(message)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeMessage dispatches on the distinguishing key of the json object and
// returns one of the typed message structs.
func DecodeMessage(b []byte) (any, error) {
	probe := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, err
	}
	switch {
	case probe["initialize"] != nil:
		message := &InitializeMessage{}
		if err := json.Unmarshal(b, message); err != nil {
			return nil, err
		}
		return message, nil
	case probe["call"] != nil:
		message := &CallMessage{}
		if err := json.Unmarshal(b, message); err != nil {
			return nil, err
		}
		return message, nil
	case probe["update"] != nil:
		message := &UpdateMessage{}
		if err := json.Unmarshal(b, message); err != nil {
			return nil, err
		}
		return message, nil
	case probe["opcode"] != nil:
		opcode := ""
		if err := json.Unmarshal(probe["opcode"], &opcode); err != nil {
			return nil, err
		}
		switch opcode {
		case OpcodeContinue:
			message := &ChunkMessage{}
			if err := json.Unmarshal(b, message); err != nil {
				return nil, err
			}
			return message, nil
		case OpcodeFinished:
			message := &FinishMessage{}
			if err := json.Unmarshal(b, message); err != nil {
				return nil, err
			}
			return message, nil
		default:
			return nil, fmt.Errorf("Unknown opcode: %s", opcode)
		}
	default:
		return nil, fmt.Errorf("Unknown message shape.")
	}
}

// ValueString coerces the operation value to text. Non-string scalars are
// formatted, missing values are empty.
func (self *UpdateOperation) ValueString() string {
	switch v := self.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Subtree reads the operation value as a subtree descriptor. An empty or
// absent value is the collapse descriptor.
func (self *UpdateOperation) Subtree() (*SubtreeDescriptor, error) {
	switch v := self.Value.(type) {
	case nil:
		return &SubtreeDescriptor{}, nil
	case string:
		if v == "" {
			return &SubtreeDescriptor{}, nil
		}
		return nil, fmt.Errorf("Subtree value must be empty or an object: %q", v)
	case *SubtreeDescriptor:
		return v, nil
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		descriptor := &SubtreeDescriptor{}
		if err := json.Unmarshal(b, descriptor); err != nil {
			return nil, err
		}
		return descriptor, nil
	default:
		return nil, fmt.Errorf("Subtree value must be empty or an object: %T", v)
	}
}
