// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package abicodec

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Values is the JSON-like form of a tuple: integers as decimal strings,
// addresses and byte strings as 0x-prefixed hex.
type Values = map[string]any

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// ToABIValue converts v into the Go value go-ethereum packs for t.
func ToABIValue(t abi.Type, v any) (any, error) {
	out, err := toReflect(t, v, "value")
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func invalid(path string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidValue, path, fmt.Sprintf(format, args...))
}

func toReflect(t abi.Type, v any, path string) (reflect.Value, error) {
	if v == nil {
		return reflect.Value{}, invalid(path, "missing %s", t.String())
	}
	switch t.T {
	case abi.IntTy, abi.UintTy:
		n, err := parseInteger(t, v, path)
		if err != nil {
			return reflect.Value{}, err
		}
		goType := t.GetType()
		if goType == bigIntType {
			return reflect.ValueOf(n), nil
		}
		out := reflect.New(goType).Elem()
		if t.T == abi.IntTy {
			out.SetInt(n.Int64())
		} else {
			out.SetUint(n.Uint64())
		}
		return out, nil
	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return reflect.ValueOf(b), nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return reflect.Value{}, invalid(path, "not a bool: %q", b)
			}
			return reflect.ValueOf(parsed), nil
		}
		return reflect.Value{}, invalid(path, "not a bool: %T", v)
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return reflect.Value{}, invalid(path, "not a string: %T", v)
		}
		return reflect.ValueOf(s), nil
	case abi.AddressTy:
		switch a := v.(type) {
		case common.Address:
			return reflect.ValueOf(a), nil
		case string:
			if !common.IsHexAddress(a) {
				return reflect.Value{}, invalid(path, "not an address: %q", a)
			}
			return reflect.ValueOf(common.HexToAddress(a)), nil
		}
		return reflect.Value{}, invalid(path, "not an address: %T", v)
	case abi.FixedBytesTy:
		data, err := toBytes(v, path)
		if err != nil {
			return reflect.Value{}, err
		}
		if len(data) != t.Size {
			return reflect.Value{}, invalid(path, "expected %d bytes, got %d", t.Size, len(data))
		}
		out := reflect.New(t.GetType()).Elem()
		reflect.Copy(out, reflect.ValueOf(data))
		return out, nil
	case abi.BytesTy:
		data, err := toBytes(v, path)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(data), nil
	case abi.SliceTy, abi.ArrayTy:
		in := reflect.ValueOf(v)
		if in.Kind() != reflect.Slice && in.Kind() != reflect.Array {
			return reflect.Value{}, invalid(path, "not a list: %T", v)
		}
		var out reflect.Value
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), in.Len(), in.Len())
		} else {
			if in.Len() != t.Size {
				return reflect.Value{}, invalid(path, "expected %d elements, got %d", t.Size, in.Len())
			}
			out = reflect.New(t.GetType()).Elem()
		}
		for i := 0; i < in.Len(); i++ {
			elem, err := toReflect(*t.Elem, in.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	case abi.TupleTy:
		out := reflect.New(t.GetType()).Elem()
		switch fields := v.(type) {
		case map[string]any:
			for i, name := range t.TupleRawNames {
				elem, err := toReflect(*t.TupleElems[i], fields[name], path+"."+name)
				if err != nil {
					return reflect.Value{}, err
				}
				out.Field(i).Set(elem)
			}
		case []any:
			if len(fields) != len(t.TupleElems) {
				return reflect.Value{}, invalid(path, "expected %d fields, got %d", len(t.TupleElems), len(fields))
			}
			for i, field := range fields {
				elem, err := toReflect(*t.TupleElems[i], field, path+"."+t.TupleRawNames[i])
				if err != nil {
					return reflect.Value{}, err
				}
				out.Field(i).Set(elem)
			}
		default:
			return reflect.Value{}, invalid(path, "not a tuple: %T", v)
		}
		return out, nil
	}
	return reflect.Value{}, invalid(path, "unsupported type %s", t.String())
}

func toBytes(v any, path string) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		data, err := hexutil.Decode(b)
		if err != nil {
			if b == "0x" {
				return []byte{}, nil
			}
			return nil, invalid(path, "bad hex %q: %v", b, err)
		}
		return data, nil
	case common.Hash:
		return b.Bytes(), nil
	}
	in := reflect.ValueOf(v)
	if in.Kind() == reflect.Array && in.Type().Elem().Kind() == reflect.Uint8 {
		data := make([]byte, in.Len())
		reflect.Copy(reflect.ValueOf(data), in)
		return data, nil
	}
	return nil, invalid(path, "not bytes: %T", v)
}

func parseInteger(t abi.Type, v any, path string) (*big.Int, error) {
	n := new(big.Int)
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, invalid(path, "nil integer")
		}
		n.Set(x)
	case big.Int:
		n.Set(&x)
	case *uint256.Int:
		n = x.ToBig()
	case json.Number:
		return parseInteger(t, x.String(), path)
	case string:
		s := strings.TrimSpace(x)
		negative := strings.HasPrefix(s, "-")
		s = strings.TrimPrefix(s, "-")
		base := 10
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s, base = s[2:], 16
		}
		if _, ok := n.SetString(s, base); !ok || s == "" {
			return nil, invalid(path, "not an integer: %q", x)
		}
		if negative {
			n.Neg(n)
		}
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
			return nil, invalid(path, "not an exact integer: %v", x)
		}
		n.SetInt64(int64(x))
	default:
		in := reflect.ValueOf(v)
		switch in.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n.SetInt64(in.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n.SetUint64(in.Uint())
		default:
			return nil, invalid(path, "not an integer: %T", v)
		}
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return nil, invalid(path, "negative value for %s", t.String())
		}
		if _, overflow := uint256.FromBig(n); overflow || n.BitLen() > t.Size {
			return nil, invalid(path, "%s overflows %s", n, t.String())
		}
		return n, nil
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
		return nil, invalid(path, "%s overflows %s", n, t.String())
	}
	return n, nil
}

// FromABIValue converts a value unpacked by go-ethereum into its JSON-like form.
func FromABIValue(t abi.Type, v any) (any, error) {
	in := reflect.ValueOf(v)
	if !in.IsValid() {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidValue, t.String())
	}
	for in.Kind() == reflect.Ptr && in.Type() != bigIntType {
		if in.IsNil() {
			return nil, fmt.Errorf("%w: nil %s", ErrInvalidValue, t.String())
		}
		in = in.Elem()
	}
	switch t.T {
	case abi.IntTy, abi.UintTy:
		switch in.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return strconv.FormatInt(in.Int(), 10), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return strconv.FormatUint(in.Uint(), 10), nil
		}
		if n, ok := in.Interface().(*big.Int); ok && n != nil {
			return n.String(), nil
		}
	case abi.BoolTy:
		if in.Kind() == reflect.Bool {
			return in.Bool(), nil
		}
	case abi.StringTy:
		if in.Kind() == reflect.String {
			return in.String(), nil
		}
	case abi.AddressTy:
		if a, ok := in.Interface().(common.Address); ok {
			return a.Hex(), nil
		}
	case abi.FixedBytesTy, abi.BytesTy:
		data, err := toBytes(in.Interface(), t.String())
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(data), nil
	case abi.SliceTy, abi.ArrayTy:
		if in.Kind() == reflect.Slice || in.Kind() == reflect.Array {
			out := make([]any, in.Len())
			for i := range out {
				elem, err := FromABIValue(*t.Elem, in.Index(i).Interface())
				if err != nil {
					return nil, err
				}
				out[i] = elem
			}
			return out, nil
		}
	case abi.TupleTy:
		if in.Kind() == reflect.Struct && in.NumField() == len(t.TupleElems) {
			out := make(Values, len(t.TupleElems))
			for i, name := range t.TupleRawNames {
				elem, err := FromABIValue(*t.TupleElems[i], in.Field(i).Interface())
				if err != nil {
					return nil, err
				}
				out[name] = elem
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot read %T as %s", ErrInvalidValue, v, t.String())
}

// Encode packs v as a single argument of type t.
func Encode(t abi.Type, v any) ([]byte, error) {
	value, err := ToABIValue(t, v)
	if err != nil {
		return nil, err
	}
	packed, err := abi.Arguments{{Type: t}}.Pack(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return packed, nil
}

// Decode unpacks a single argument of type t into its JSON-like form.
func Decode(t abi.Type, data []byte) (any, error) {
	values, err := abi.Arguments{{Type: t}}.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: expected one value, got %d", ErrInvalidValue, len(values))
	}
	return FromABIValue(t, values[0])
}
