package action

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// wireAction is the JSON shape shared by both variants.
type wireAction struct {
	Action     string            `json:"action" jsonschema:"enum=respond,enum=use_tool"`
	Response   *string           `json:"response,omitempty" jsonschema:"description=Answer spoken to the user when action is respond"`
	ToolName   string            `json:"tool_name,omitempty" jsonschema:"description=Tool to invoke when action is use_tool"`
	Parameters map[string]string `json:"parameters,omitempty" jsonschema:"description=Tool parameters when action is use_tool"`
}

// Encode renders an action in its wire form.
func Encode(a Action) (string, error) {
	var wire wireAction

	switch a := a.(type) {
	case Respond:
		wire = wireAction{Action: KindRespond, Response: &a.Text}
	case UseTool:
		wire = wireAction{Action: KindUseTool, ToolName: a.ToolName, Parameters: a.Parameters}
	default:
		return "", fmt.Errorf("action: cannot encode %T", a)
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// Schema describes the wire format as JSON schema, suitable as a structured
// output constraint for the model.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}

	return reflector.ReflectFromType(reflect.TypeOf(wireAction{}))
}
