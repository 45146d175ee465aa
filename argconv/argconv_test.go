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
	"encoding/json"
	"errors"
	"math/big"
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func mustType(t *testing.T, s string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(s, "", nil)
	if err != nil {
		t.Fatalf("bad type %q: %v", s, err)
	}
	return typ
}

func TestCoerce(t *testing.T) {
	var (
		addr     = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
		word     [32]byte
		maxUint  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
		tooLarge = new(big.Int).Lsh(big.NewInt(1), 256)
	)
	word[31] = 0x2a

	tests := []struct {
		typ   string
		mode  Mode
		value interface{}
		want  interface{}
		err   string
	}{
		// integers
		{typ: "uint256", value: json.Number("1000"), want: big.NewInt(1000)},
		{typ: "uint256", value: "0x10", want: big.NewInt(16)},
		{typ: "uint256", value: "1e3", want: big.NewInt(1000)},
		{typ: "uint256", value: maxUint.String(), want: maxUint},
		{typ: "uint256", value: tooLarge.String(), err: "invalid uint256 value"},
		{typ: "uint256", value: "-1", err: "invalid uint256 value"},
		{typ: "uint256", value: "1.5", err: "invalid uint256 value"},
		{typ: "uint256", value: true, err: "invalid uint256 value: true"},
		{typ: "uint256", mode: Strict, value: "abc", err: "Invalid uint256 for argument x"},
		{typ: "int256", value: "-5", want: big.NewInt(-5)},
		{typ: "uint8", value: json.Number("255"), want: uint8(255)},
		{typ: "uint8", value: json.Number("256"), err: "invalid uint8 value"},
		{typ: "int8", value: json.Number("-128"), want: int8(-128)},
		{typ: "int8", value: json.Number("128"), err: "invalid int8 value"},
		{typ: "uint64", value: "18446744073709551615", want: uint64(18446744073709551615)},
		{typ: "uint24", value: json.Number("7"), want: big.NewInt(7)},
		{typ: "uint256", value: "1e77", want: new(big.Int).Exp(big.NewInt(10), big.NewInt(77), nil)},
		{typ: "uint256", value: "1e78", err: "invalid uint256 value"},
		{typ: "uint256", value: json.Number("1e600000000"), err: "invalid uint256 value"},
		{typ: "int256", value: "-1e600000000", err: "invalid int256 value"},
		{typ: "uint256", value: "1e9999999999", err: "invalid uint256 value"},
		{typ: "uint8", value: "1e3", err: "invalid uint8 value"},

		// addresses
		{typ: "address", value: strings.ToLower(addr.Hex()), want: addr},
		{typ: "address", value: addr.Hex(), want: addr},
		{typ: "address", value: "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", err: "Invalid address: 0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{typ: "address", value: "0x123", err: "Invalid address: 0x123"},
		{typ: "address", mode: Strict, value: json.Number("1"), err: "Invalid address for argument x"},

		// booleans
		{typ: "bool", value: true, want: true},
		{typ: "bool", value: "false", want: true},
		{typ: "bool", value: json.Number("2"), want: true},
		{typ: "bool", value: nil, want: false},
		{typ: "bool", value: "maybe", want: true},
		{typ: "bool", value: "0", want: true},
		{typ: "bool", value: "", want: false},
		{typ: "bool", value: json.Number("0"), want: false},
		{typ: "bool", value: json.Number("0.0"), want: false},
		{typ: "bool", value: []interface{}{}, want: true},
		{typ: "bool", value: map[string]interface{}{}, want: true},
		{typ: "bool", mode: Strict, value: "true", err: "Invalid boolean for argument x"},

		// strings
		{typ: "string", value: "hello", want: "hello"},
		{typ: "string", value: json.Number("42"), want: "42"},
		{typ: "string", value: false, want: "false"},
		{typ: "string", value: nil, want: "null"},
		{typ: "string", value: []interface{}{json.Number("1"), json.Number("2")}, want: "1,2"},
		{typ: "string", value: []interface{}{"a", nil, []interface{}{"b", true}}, want: "a,,b,true"},
		{typ: "string", value: map[string]interface{}{"a": "b"}, want: "[object Object]"},
		{typ: "string", mode: Strict, value: json.Number("42"), err: "Invalid string for argument x"},

		// byte strings
		{typ: "bytes", value: "0xdeadbeef", want: []byte{0xde, 0xad, 0xbe, 0xef}},
		{typ: "bytes", value: "deadbeef", err: "invalid bytes value"},
		{typ: "bytes32", value: "0x000000000000000000000000000000000000000000000000000000000000002a", want: word},
		{typ: "bytes32", value: "0x2a", err: "invalid bytes32 value"},

		// lists
		{typ: "uint256[]", value: []interface{}{"1", json.Number("2")}, want: []*big.Int{big.NewInt(1), big.NewInt(2)}},
		{typ: "address[2]", value: []interface{}{addr.Hex(), addr.Hex()}, want: [2]common.Address{addr, addr}},
		{typ: "address[2]", value: []interface{}{addr.Hex()}, err: "address[2] expects 2 elements, got 1"},
		{typ: "bool[]", value: []interface{}{}, want: []bool{}},
		{typ: "string[]", mode: Strict, value: "a", err: "Invalid array for argument x"},
		{typ: "uint8[]", mode: Strict, value: []interface{}{json.Number("300")}, err: "Invalid uint8 for argument x[0]"},
	}
	for i, tt := range tests {
		have, err := Coerce(tt.value, mustType(t, tt.typ), tt.mode, "x")
		if tt.err != "" {
			if err == nil {
				t.Errorf("test %d (%s %v): expected error %q, got value %v", i, tt.typ, tt.value, tt.err, have)
			} else if !strings.HasPrefix(err.Error(), tt.err) {
				t.Errorf("test %d (%s %v): error mismatch: have %q, want %q", i, tt.typ, tt.value, err, tt.err)
			}
			continue
		}
		if err != nil {
			t.Errorf("test %d (%s %v): unexpected error: %v", i, tt.typ, tt.value, err)
			continue
		}
		if !reflect.DeepEqual(have, tt.want) {
			t.Errorf("test %d (%s %v): have %#v, want %#v", i, tt.typ, tt.value, have, tt.want)
		}
	}
}

func TestCoercePassthrough(t *testing.T) {
	typ, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{{Name: "a", Type: "uint256"}})
	if err != nil {
		t.Fatal(err)
	}
	value := map[string]interface{}{"a": json.Number("1")}
	have, err := Coerce(value, typ, Lenient, "t")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(have, value) {
		t.Fatalf("value was modified: %v", have)
	}
}

func TestParseTypes(t *testing.T) {
	args, err := ParseTypes([]string{"uint", "int[]", "address"}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"uint256", "int256[]", "address"}
	for i, arg := range args {
		if arg.Type.String() != want[i] {
			t.Errorf("arg %d: have type %s, want %s", i, arg.Type, want[i])
		}
	}
	if args[1].Name != "b" {
		t.Errorf("name not carried: %q", args[1].Name)
	}
	if _, err := ParseTypes([]string{"uint256"}, []string{"a", "b"}); err == nil {
		t.Error("expected error for mismatched names")
	}
	if _, err := ParseTypes([]string{"notatype"}, nil); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestPositional(t *testing.T) {
	args, _ := ParseTypes([]string{"address", "uint256"}, []string{"to", "amount"})

	_, err := Positional([]interface{}{"0x0000000000000000000000000000000000000001"}, args, Lenient)
	var cerr *CountError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected count error, got %v", err)
	}
	if err.Error() != "Expected 2 arguments, but got 1" {
		t.Fatalf("wrong message: %q", err)
	}

	values, err := Positional([]interface{}{"0x0000000000000000000000000000000000000001", "5"}, args, Lenient)
	if err != nil {
		t.Fatal(err)
	}
	if values[0] != common.HexToAddress("0x01") || values[1].(*big.Int).Int64() != 5 {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestNamed(t *testing.T) {
	args, _ := ParseTypes([]string{"string", "bool"}, []string{"label", "flag"})

	_, err := Named(map[string]interface{}{"label": "x"}, args, Strict)
	var merr *MissingError
	if !errors.As(err, &merr) || merr.Name != "flag" {
		t.Fatalf("expected missing flag error, got %v", err)
	}
	if err.Error() != "Missing argument: flag" {
		t.Fatalf("wrong message: %q", err)
	}

	values, err := Named(map[string]interface{}{"flag": true, "label": "x", "extra": 1}, args, Strict)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(values, []interface{}{"x", true}) {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestEncodeDecode(t *testing.T) {
	args, _ := ParseTypes(
		[]string{"uint256", "address", "bool", "string", "bytes4", "int16[]"},
		[]string{"amount", "owner", "active", "", "tag", "deltas"},
	)
	body, err := ParseList([]byte(`["123456789012345678901234567890", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", 1, "memo", "0xcafebabe", [-1, 2]]`))
	if err != nil {
		t.Fatal(err)
	}
	values, err := Positional(body, args, Lenient)
	if err != nil {
		t.Fatal(err)
	}
	data, err := Encode(args, values)
	if err != nil {
		t.Fatal(err)
	}
	have, err := Decode(args, data)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"amount": "123456789012345678901234567890",
		"owner":  "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"active": "true",
		"3":      "memo",
		"tag":    "0xcafebabe",
		"deltas": "-1,2",
	}
	if !reflect.DeepEqual(have, want) {
		t.Fatalf("decode mismatch:\nhave %v\nwant %v", have, want)
	}
}

func TestParseBody(t *testing.T) {
	list, err := ParseList(nil)
	if err != nil || len(list) != 0 {
		t.Fatalf("empty body: %v %v", list, err)
	}
	if _, err := ParseList([]byte(`{"a":1}`)); err == nil || !strings.Contains(err.Error(), "expected JSON array") {
		t.Fatalf("object as list: %v", err)
	}
	if _, err := ParseList([]byte(`[1`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	obj, err := ParseObject([]byte(" \n"))
	if err != nil || len(obj) != 0 {
		t.Fatalf("empty object body: %v %v", obj, err)
	}
	obj, err = ParseObject([]byte(`{"n": 10000000000000000000000}`))
	if err != nil {
		t.Fatal(err)
	}
	if obj["n"] != json.Number("10000000000000000000000") {
		t.Fatalf("number precision lost: %#v", obj["n"])
	}
	if _, err := ParseObject([]byte(`[]`)); err == nil || !strings.Contains(err.Error(), "expected JSON object") {
		t.Fatalf("array as object: %v", err)
	}
}

func TestParseBigExponentBound(t *testing.T) {
	for _, s := range []string{"1e600000000", "-1e600000000", "5e78", "1e9999999999"} {
		if n, err := parseBig(s); err == nil {
			t.Errorf("%s: expected error, got %d bit integer", s, n.BitLen())
		}
	}
	n, err := parseBig("1e76")
	if err != nil {
		t.Fatalf("1e76: unexpected error: %v", err)
	}
	if want := new(big.Int).Exp(big.NewInt(10), big.NewInt(76), nil); n.Cmp(want) != 0 {
		t.Fatalf("1e76: have %v, want %v", n, want)
	}
}
