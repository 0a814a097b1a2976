// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"os"
	"reflect"
)

// JSONOutput is embedded in a command's params struct to add the
// --json flag and structured output.
//
//	type listParams struct {
//	    cli.JSONOutput
//	    Status string `flag:"status" desc:"filter by status"`
//	}
type JSONOutput struct {
	OutputJSON bool `flag:"json" desc:"output as JSON"`
}

// EmitJSON writes result as indented JSON to stdout when --json is
// set. Returns (true, nil) after writing, (true, err) on a write
// failure, or (false, nil) when the caller should format text
// instead. Nil slices serialize as [], never null.
func (j *JSONOutput) EmitJSON(result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	return true, WriteJSON(normalizeNilSlice(result))
}

// EmitError writes the {ok:false, error:{message}} failure shape to
// stdout when --json is set. Returns whether it wrote anything.
func (j *JSONOutput) EmitError(err error) bool {
	if !j.OutputJSON {
		return false
	}
	type errorBody struct {
		Message string `json:"message"`
	}
	WriteJSON(struct {
		OK    bool      `json:"ok"`
		Error errorBody `json:"error"`
	}{OK: false, Error: errorBody{Message: err.Error()}})
	return true
}

// WriteJSON marshals value as indented JSON to stdout.
func WriteJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
