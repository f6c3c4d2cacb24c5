package policy

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal and Unmarshal give ParamState a JSON-serializable contract,
// using jsoniter rather than encoding/json directly.
func Marshal(ps ParamState) ([]byte, error) { return json.Marshal(ps) }

func Unmarshal(data []byte) (ParamState, error) {
	var ps ParamState
	if err := json.Unmarshal(data, &ps); err != nil {
		return ParamState{}, err
	}
	return ps, nil
}
