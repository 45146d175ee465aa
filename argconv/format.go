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
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Decode unpacks data as the tuple described by args and renders every value
// as a string, keyed by argument name. Unnamed arguments are keyed by their
// position.
func Decode(args abi.Arguments, data []byte) (map[string]string, error) {
	values, err := args.UnpackValues(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for i, v := range values {
		key := args[i].Name
		if key == "" {
			key = strconv.Itoa(i)
		}
		out[key] = Format(v)
	}
	return out, nil
}

// Format renders an unpacked ABI value. Integers are printed in decimal,
// addresses with their checksum, byte strings as 0x hex and lists as comma
// separated elements.
func Format(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return hexutil.Encode(b)
		}
		return formatList(rv)
	case reflect.Slice:
		return formatList(rv)
	case reflect.Struct:
		return formatTuple(rv)
	}
	return fmt.Sprint(v)
}

func formatList(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = Format(rv.Index(i).Interface())
	}
	return strings.Join(parts, ",")
}

// formatTuple mirrors the list rendering for the anonymous structs the ABI
// unpacker produces for tuples.
func formatTuple(rv reflect.Value) string {
	parts := make([]string, rv.NumField())
	for i := range parts {
		parts[i] = Format(rv.Field(i).Interface())
	}
	return strings.Join(parts, ",")
}
