// Package union (un)marshals structs that model a closed set of alternatives. Each
// alternative is a pointer field tagged `union:"key,value"`; exactly one is set, and the
// JSON object carries "key": "value" to say which.
package union

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

const unionTag = "union"

type unionField struct {
	index int
	field reflect.StructField
}

// parseUnionStructTag parses the "union" struct tag, formatted as "key,value".
func parseUnionStructTag(tagValue string) (string, string, error) {
	switch parsed := strings.Split(tagValue, ","); {
	case len(parsed) == 2 && parsed[0] != "" && parsed[1] != "":
		return parsed[0], parsed[1], nil
	default:
		return "", "", errors.Errorf("unexpected union tag format: %q", tagValue)
	}
}

// parseUnionTypes returns, for each union key, the alternatives keyed by their value.
func parseUnionTypes(elem reflect.Type) (map[string]map[string]unionField, error) {
	if elem.Kind() != reflect.Struct {
		return nil, errors.Errorf("union type must be a struct: got %s", elem.Kind())
	}
	unions := make(map[string]map[string]unionField)
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		tagValue, ok := field.Tag.Lookup(unionTag)
		if !ok {
			continue
		}
		if field.Type.Kind() != reflect.Ptr {
			return nil, errors.Errorf("union field %s must be a pointer", field.Name)
		}
		key, value, err := parseUnionStructTag(tagValue)
		if err != nil {
			return nil, err
		}
		if _, ok := unions[key]; !ok {
			unions[key] = make(map[string]unionField)
		}
		unions[key][value] = unionField{index: i, field: field}
	}
	return unions, nil
}

// getTagValue returns the union value named by key in the JSON object, if present.
func getTagValue(parsed map[string]interface{}, key string) (string, bool, error) {
	tagValue, ok := parsed[key]
	if !ok {
		return "", false, nil
	}
	typed, ok := tagValue.(string)
	if !ok {
		return "", false, errors.Errorf("%s must be a string: got %T", key, tagValue)
	}
	return typed, true, nil
}

// Unmarshal unmarshals the union type pointed to by v from data. Fields outside the
// selected alternative and the common fields are rejected.
func Unmarshal(data []byte, v interface{}) error {
	value := reflect.ValueOf(v)
	if value.Kind() != reflect.Ptr || value.IsNil() {
		return errors.New("union: Unmarshal requires a non-nil pointer")
	}
	unionTypes, err := parseUnionTypes(value.Type().Elem())
	if err != nil {
		return err
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}

	expectedFields := parseFields(value.Type().Elem())
	for key, fields := range unionTypes {
		expectedFields[key] = true
		expectedValue, ok, err := getTagValue(parsed, key)
		if err != nil {
			return err
		} else if !ok {
			continue
		}
		field, ok := fields[expectedValue]
		if !ok {
			return errors.Errorf("unexpected %s: %s", key, expectedValue)
		}

		nested := reflect.New(field.field.Type.Elem())
		if err := json.Unmarshal(data, nested.Interface()); err != nil {
			return err
		}
		for _, other := range fields {
			value.Elem().Field(other.index).Set(reflect.Zero(other.field.Type))
		}
		value.Elem().Field(field.index).Set(nested)

		for k := range parseFields(field.field.Type.Elem()) {
			expectedFields[k] = true
		}
	}

	for k := range parsed {
		if !expectedFields[k] {
			return errors.Errorf("json: unknown field %q", k)
		}
	}
	return nil
}

// Marshal marshals the union type: the common fields, the selected alternative's fields and
// the union key.
func Marshal(v interface{}) ([]byte, error) {
	value := reflect.Indirect(reflect.ValueOf(v))
	unionTypes, err := parseUnionTypes(value.Type())
	if err != nil {
		return nil, err
	}

	merged := make(map[string]interface{})
	for key, fields := range unionTypes {
		for name, field := range fields {
			fieldVal := value.Field(field.index)
			if fieldVal.IsNil() {
				continue
			}
			if err := mergeJSON(merged, fieldVal.Interface()); err != nil {
				return nil, err
			}
			merged[key] = name
		}
	}

	for i := 0; i < value.NumField(); i++ {
		field := value.Type().Field(i)
		if _, ok := field.Tag.Lookup(unionTag); ok {
			continue
		}
		name, omitEmpty, skip := jsonName(field)
		if skip || !value.Field(i).CanInterface() {
			continue
		}
		if omitEmpty && value.Field(i).IsZero() {
			continue
		}
		merged[name] = value.Field(i).Interface()
	}
	return json.Marshal(merged)
}

func mergeJSON(into map[string]interface{}, v interface{}) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(bs, &m); err != nil {
		return errors.Wrap(err, "union alternatives must marshal to JSON objects")
	}
	for k, val := range m {
		into[k] = val
	}
	return nil
}

func jsonName(field reflect.StructField) (name string, omitEmpty bool, skip bool) {
	tagValue, ok := field.Tag.Lookup("json")
	switch {
	case tagValue == "-":
		return "", false, true
	case !ok:
		return field.Name, false, false
	}
	parts := strings.Split(tagValue, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func parseFields(elem reflect.Type) map[string]bool {
	fields := make(map[string]bool)
	for i := 0; i < elem.NumField(); i++ {
		name, _, skip := jsonName(elem.Field(i))
		if skip {
			continue
		}
		fields[name] = true
	}
	return fields
}
