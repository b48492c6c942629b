// Package action implements the wire protocol the language model answers in.
//
// The model must reply with exactly one JSON object of one of two shapes:
//
//	{"action":"respond","response":"<string>"}
//	{"action":"use_tool","tool_name":"<string>","parameters":{"<k>":"<v>"}}
//
// Decode turns such a reply into a Respond or a UseTool value. Anything else
// is a *DecodeError; there is no default action.
package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	KindRespond = "respond"
	KindUseTool = "use_tool"
)

// ErrDecode matches every *DecodeError.
var ErrDecode = errors.New("action: decode failed")

// Action is either Respond or UseTool.
type Action interface {
	Kind() string
	isAction()
}

// Respond is a final natural-language answer.
type Respond struct {
	Text string
}

func (Respond) Kind() string { return KindRespond }
func (Respond) isAction()    {}

// UseTool asks for one named tool to be invoked.
type UseTool struct {
	ToolName   string
	Parameters map[string]string
}

func (UseTool) Kind() string { return KindUseTool }
func (UseTool) isAction()    {}

// DecodeError describes why a model reply is not a valid action.
type DecodeError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("action: %s: %v", e.Reason, e.Err)
	}
	return "action: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Decode parses a complete model reply.
func Decode(raw string) (Action, error) {
	fail := func(reason string, err error) (Action, error) {
		return nil, &DecodeError{Raw: raw, Reason: reason, Err: err}
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))

	var fields map[string]json.RawMessage
	if err := decoder.Decode(&fields); err != nil {
		return fail("invalid JSON", err)
	}

	if fields == nil {
		return fail("payload is not an object", nil)
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return fail("unexpected data after the action object", nil)
	}

	kind, ok, err := stringField(fields, "action")
	if err != nil {
		return fail(`"action" must be a string`, err)
	}
	if !ok {
		return fail(`missing "action"`, nil)
	}

	switch kind {
	case KindRespond:
		text, ok, err := stringField(fields, "response")
		if err != nil {
			return fail(`"response" must be a string`, err)
		}
		if !ok {
			return fail(`missing "response"`, nil)
		}

		return Respond{Text: text}, nil

	case KindUseTool:
		name, ok, err := stringField(fields, "tool_name")
		if err != nil {
			return fail(`"tool_name" must be a string`, err)
		}
		if !ok {
			return fail(`missing "tool_name"`, nil)
		}

		parameters := map[string]string{}
		if rawParams, ok := fields["parameters"]; ok && !isNull(rawParams) {
			if err := json.Unmarshal(rawParams, &parameters); err != nil {
				return fail(`"parameters" must map strings to strings`, err)
			}
		}

		return UseTool{ToolName: name, Parameters: parameters}, nil

	default:
		return fail(fmt.Sprintf("unknown action %q", kind), nil)
	}
}

// stringField reads a required-typed string field; null counts as a type error.
func stringField(fields map[string]json.RawMessage, key string) (string, bool, error) {
	raw, ok := fields[key]
	if !ok {
		return "", false, nil
	}

	if isNull(raw) {
		return "", true, errors.New("null value")
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", true, err
	}

	return value, true, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
