// Copyright 2025 The ensis Authors
// This file is part of the ensis library.
//
// The ensis library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ensis library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ensis library. If not, see <http://www.gnu.org/licenses/>.

package argconv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ParseList decodes a request body holding a JSON array. An empty body is an
// empty list. Numbers are kept as json.Number to preserve 256 bit precision.
func ParseList(body []byte) ([]interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []interface{}{}, nil
	}
	var list []interface{}
	if err := unmarshal(body, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []interface{}{}
	}
	return list, nil
}

// ParseObject decodes a request body holding a JSON object keyed by parameter
// name. An empty body is an empty object.
func ParseObject(body []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]interface{}{}, nil
	}
	var obj map[string]interface{}
	if err := unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]interface{}{}
	}
	return obj, nil
}

func unmarshal(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("invalid arguments: expected JSON %s, got %s", kind(v), typeErr.Value)
		}
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if dec.More() {
		return errors.New("invalid arguments: trailing data after JSON value")
	}
	return nil
}

func kind(v interface{}) string {
	if _, ok := v.(*map[string]interface{}); ok {
		return "object"
	}
	return "array"
}
