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

// Package argconv converts caller supplied JSON values into the Go values the
// go-ethereum ABI packer expects, and renders unpacked return values back into
// strings.
package argconv

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// Mode selects how forgiving the conversion of loosely typed JSON values is.
type Mode int

const (
	// Lenient accepts any JSON scalar where a bool or string is expected and
	// converts it, the way positional read arguments are treated.
	Lenient Mode = iota

	// Strict requires the JSON type to match the ABI type, the way named
	// write arguments are treated.
	Strict
)

func (m Mode) String() string {
	switch m {
	case Lenient:
		return "lenient"
	case Strict:
		return "strict"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

var bigT = reflect.TypeOf(&big.Int{})

// maxIntBits is the widest integer any ABI int or uint type can hold.
const maxIntBits = 256

// CountError is returned when the number of supplied arguments does not match
// the number of parameters of the target function.
type CountError struct {
	Want, Have int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("Expected %d arguments, but got %d", e.Want, e.Have)
}

// MissingError is returned when a named argument is absent from the request.
type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return "Missing argument: " + e.Name
}

// ParseTypes builds the ABI argument list for the given parameter types. Names
// are optional and only used to label the arguments.
func ParseTypes(types []string, names []string) (abi.Arguments, error) {
	if names != nil && len(names) != len(types) {
		return nil, fmt.Errorf("parameter name count %d does not match type count %d", len(names), len(types))
	}
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(canonicalType(t), "", nil)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		args[i] = abi.Argument{Type: typ}
		if names != nil {
			args[i].Name = names[i]
		}
	}
	return args, nil
}

// canonicalType expands the int/uint aliases, which the ABI parser rejects.
func canonicalType(t string) string {
	t = strings.TrimSpace(t)
	for _, alias := range []string{"uint", "int"} {
		if t == alias || strings.HasPrefix(t, alias+"[") {
			return alias + "256" + t[len(alias):]
		}
	}
	return t
}

// Positional converts an ordered list of JSON values against args.
func Positional(values []interface{}, args abi.Arguments, mode Mode) ([]interface{}, error) {
	if len(values) != len(args) {
		return nil, &CountError{Want: len(args), Have: len(values)}
	}
	out := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := Coerce(values[i], arg.Type, mode, arg.Name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Named converts a JSON object keyed by parameter name against args. Unknown
// keys are ignored.
func Named(values map[string]interface{}, args abi.Arguments, mode Mode) ([]interface{}, error) {
	out := make([]interface{}, len(args))
	for i, arg := range args {
		value, ok := values[arg.Name]
		if !ok {
			return nil, &MissingError{Name: arg.Name}
		}
		v, err := Coerce(value, arg.Type, mode, arg.Name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Encode ABI-encodes values as the parameter tuple described by args.
func Encode(args abi.Arguments, values []interface{}) ([]byte, error) {
	return args.Pack(values...)
}

// Coerce converts a single decoded JSON value into the Go representation of typ.
// The name is only used in error messages and may be empty.
func Coerce(value interface{}, typ abi.Type, mode Mode, name string) (interface{}, error) {
	switch typ.T {
	case abi.IntTy, abi.UintTy:
		n, err := toBig(value)
		if err != nil {
			return nil, invalid(typ, mode, name, value)
		}
		if !inRange(n, typ) {
			return nil, invalid(typ, mode, name, value)
		}
		return intValue(n, typ), nil

	case abi.AddressTy:
		s, ok := value.(string)
		if !ok || !IsAddress(s) {
			return nil, invalidAddress(mode, name, value)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		return toBool(value, mode, name)

	case abi.StringTy:
		return toString(value, mode, name)

	case abi.BytesTy:
		b, err := toBytes(value)
		if err != nil {
			return nil, invalid(typ, mode, name, value)
		}
		return b, nil

	case abi.FixedBytesTy:
		b, err := toBytes(value)
		if err != nil || len(b) != typ.Size {
			return nil, invalid(typ, mode, name, value)
		}
		arr := reflect.New(typ.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		return toList(value, typ, mode, name)

	default:
		log.Warn("Unhandled ABI type, passing value as-is", "type", typ.String(), "arg", name)
		return value, nil
	}
}

func toList(value interface{}, typ abi.Type, mode Mode, name string) (interface{}, error) {
	items, ok := value.([]interface{})
	if !ok {
		if mode == Strict {
			return nil, fmt.Errorf("Invalid array for argument %s", name)
		}
		return nil, fmt.Errorf("invalid %s value: %v", typ.String(), display(value))
	}
	var list reflect.Value
	switch typ.T {
	case abi.ArrayTy:
		if len(items) != typ.Size {
			return nil, fmt.Errorf("%s expects %d elements, got %d", typ.String(), typ.Size, len(items))
		}
		list = reflect.New(typ.GetType()).Elem()
	default:
		list = reflect.MakeSlice(typ.GetType(), len(items), len(items))
	}
	for i, item := range items {
		v, err := Coerce(item, *typ.Elem, mode, fmt.Sprintf("%s[%d]", name, i))
		if err != nil {
			return nil, err
		}
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || !rv.Type().AssignableTo(list.Index(i).Type()) {
			return nil, fmt.Errorf("cannot use %T as element of %s", v, typ.String())
		}
		list.Index(i).Set(rv)
	}
	return list.Interface(), nil
}

func invalid(typ abi.Type, mode Mode, name string, value interface{}) error {
	if mode == Strict {
		return fmt.Errorf("Invalid %s for argument %s", typ.String(), name)
	}
	return fmt.Errorf("invalid %s value: %v", typ.String(), display(value))
}

func invalidAddress(mode Mode, name string, value interface{}) error {
	if mode == Strict {
		return fmt.Errorf("Invalid address for argument %s", name)
	}
	return fmt.Errorf("Invalid address: %v", display(value))
}

func display(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	default:
		blob, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(blob)
	}
}

// toBig parses JSON numbers, decimal strings and 0x-prefixed hex strings.
func toBig(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case json.Number:
		return parseBig(string(v))
	case string:
		return parseBig(v)
	case float64:
		f := big.NewFloat(v)
		if !f.IsInt() {
			return nil, errors.New("not an integer")
		}
		n, _ := f.Int(nil)
		return n, nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case *big.Int:
		return new(big.Int).Set(v), nil
	default:
		return nil, fmt.Errorf("unsupported integer value %T", value)
	}
}

func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var (
		n  *big.Int
		ok bool
	)
	switch {
	case s == "":
		return nil, errors.New("empty integer")
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		n, ok = new(big.Int).SetString(s[2:], 16)
	default:
		n, ok = new(big.Int).SetString(s, 10)
		if !ok {
			// Accept integral exponent notation such as 1e18.
			f, _, err := big.ParseFloat(s, 10, 512, big.ToZero)
			if err != nil || f.IsInf() || !f.IsInt() {
				return nil, fmt.Errorf("invalid integer %q", s)
			}
			// The exponent is unbounded, so check the width before expanding.
			if f.MantExp(nil) > maxIntBits {
				return nil, fmt.Errorf("integer %q exceeds %d bits", s, maxIntBits)
			}
			n, _ = f.Int(nil)
			ok = true
		}
	}
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if neg {
		n.Neg(n)
	}
	return n, nil
}

func inRange(n *big.Int, typ abi.Type) bool {
	if typ.T == abi.UintTy {
		if n.Sign() < 0 {
			return false
		}
		if typ.Size == 256 {
			_, overflow := uint256.FromBig(n)
			return !overflow
		}
		return n.BitLen() <= typ.Size
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(typ.Size-1))
	if n.Sign() >= 0 {
		return n.Cmp(limit) < 0
	}
	return new(big.Int).Neg(n).Cmp(limit) <= 0
}

// intValue converts n into the Go type the packer uses for typ: sized Go
// integers up to 64 bits, *big.Int above.
func intValue(n *big.Int, typ abi.Type) interface{} {
	rt := typ.GetType()
	if rt == bigT {
		return n
	}
	v := reflect.New(rt).Elem()
	if typ.T == abi.UintTy {
		v.SetUint(n.Uint64())
	} else {
		v.SetInt(n.Int64())
	}
	return v.Interface()
}

// IsAddress accepts 20-byte hex addresses. Mixed case input must carry a
// valid EIP-55 checksum.
func IsAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if hex == strings.ToLower(hex) || hex == strings.ToUpper(hex) {
		return true
	}
	return common.HexToAddress(s).Hex()[2:] == hex
}

// toBool follows JavaScript truthiness in lenient mode: empty strings, zero,
// NaN and null are false, every other value is true.
func toBool(value interface{}, mode Mode, name string) (interface{}, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	if mode == Strict {
		return nil, fmt.Errorf("Invalid boolean for argument %s", name)
	}
	switch v := value.(type) {
	case nil:
		return false, nil
	case json.Number:
		// Out of range literals parse to an infinity, which is truthy.
		f, _ := strconv.ParseFloat(v.String(), 64)
		return f != 0 && !math.IsNaN(f), nil
	case float64:
		return v != 0 && !math.IsNaN(v), nil
	case string:
		return v != "", nil
	default:
		return true, nil
	}
}

func toString(value interface{}, mode Mode, name string) (interface{}, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	if mode == Strict {
		return nil, fmt.Errorf("Invalid string for argument %s", name)
	}
	return jsString(value), nil
}

// jsString renders a decoded JSON value the way JavaScript's String does.
// Arrays join their elements with commas and null elements render empty.
func jsString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			if item != nil {
				parts[i] = jsString(item)
			}
		}
		return strings.Join(parts, ",")
	case map[string]interface{}:
		return "[object Object]"
	default:
		return fmt.Sprint(v)
	}
}

func toBytes(value interface{}) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("unsupported bytes value %T", value)
	}
	return hexutil.Decode(s)
}
