package mirror

import (
	"encoding"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
)

// Sanitize converts v into a tree that is guaranteed to marshal as JSON.
//
// Functions, channels, unsafe pointers, live resources (io.Closer) and any
// value that fails to marshal are removed. Struct fields and map entries that
// are removed are omitted; slice and array elements become null so positions
// are preserved. Cycles are cut at the repeated reference.
func Sanitize(v any) any {
	s := sanitizer{seen: make(map[uintptr]bool)}
	out, ok := s.value(reflect.ValueOf(v))
	if !ok {
		return nil
	}
	return out
}

// MarshalSanitized is json.Marshal of Sanitize(v).
func MarshalSanitized(v any) (json.RawMessage, error) {
	data, err := json.Marshal(Sanitize(v))
	if err != nil {
		return nil, fmt.Errorf("marshal sanitized state: %w", err)
	}
	return data, nil
}

var (
	closerType        = reflect.TypeOf((*io.Closer)(nil)).Elem()
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

type sanitizer struct {
	seen map[uintptr]bool
}

// value returns the sanitized form of v and false when v must be dropped.
func (s sanitizer) value(v reflect.Value) (any, bool) {
	if !v.IsValid() {
		return nil, true
	}

	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, false
	}

	if v.Type().Implements(closerType) {
		return nil, false
	}

	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, true
		}
		return s.value(v.Elem())
	}

	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, true
		}
		if v.Type().Elem().Implements(closerType) {
			return nil, false
		}
		ptr := v.Pointer()
		if s.seen[ptr] {
			return nil, false
		}
		s.seen[ptr] = true
		defer delete(s.seen, ptr)
	}

	if v.Type().Implements(jsonMarshalerType) || v.Type().Implements(textMarshalerType) {
		return roundTrip(v)
	}

	switch v.Kind() {
	case reflect.Pointer:
		return s.value(v.Elem())
	case reflect.Struct:
		return s.structValue(v)
	case reflect.Map:
		return s.mapValue(v)
	case reflect.Slice:
		if v.IsNil() {
			return nil, true
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return roundTrip(v)
		}
		ptr := v.Pointer()
		if s.seen[ptr] && v.Len() > 0 {
			return nil, false
		}
		s.seen[ptr] = true
		defer delete(s.seen, ptr)
		return s.listValue(v), true
	case reflect.Array:
		return s.listValue(v), true
	default:
		return roundTrip(v)
	}
}

func (s sanitizer) listValue(v reflect.Value) []any {
	out := make([]any, v.Len())
	for i := range out {
		if elem, ok := s.value(v.Index(i)); ok {
			out[i] = elem
		}
	}
	return out
}

func (s sanitizer) mapValue(v reflect.Value) (any, bool) {
	if v.IsNil() {
		return nil, true
	}
	ptr := v.Pointer()
	if s.seen[ptr] {
		return nil, false
	}
	s.seen[ptr] = true
	defer delete(s.seen, ptr)

	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, ok := mapKey(iter.Key())
		if !ok {
			continue
		}
		if elem, ok := s.value(iter.Value()); ok {
			out[key] = elem
		}
	}
	return out, true
}

func (s sanitizer) structValue(v reflect.Value) (any, bool) {
	out := make(map[string]any)
	s.collectFields(v, out)
	return out, true
}

func (s sanitizer) collectFields(v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, omitEmpty, skip := parseJSONTag(field)
		if skip {
			continue
		}

		fv := v.Field(i)
		if field.Anonymous && name == "" {
			ft := field.Type
			if ft.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && !ft.Implements(jsonMarshalerType) {
				s.collectFields(fv, out)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		if omitEmpty && isEmptyValue(fv) {
			continue
		}
		if elem, ok := s.value(fv); ok {
			out[name] = elem
		}
	}
}

func parseJSONTag(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return parts[0], omitEmpty, false
}

func mapKey(k reflect.Value) (string, bool) {
	if k.Kind() == reflect.String {
		return k.String(), true
	}
	if k.Type().Implements(textMarshalerType) {
		text, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", false
		}
		return string(text), true
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), true
	}
	return "", false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}

// roundTrip keeps a leaf only if it survives json.Marshal.
func roundTrip(v reflect.Value) (any, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, false
	}
	return json.RawMessage(data), true
}
