// Package schema validates memory-plane values against declared type
// names. Nodes may constrain their outputs with a map of key to type
// string ("string", "int", "float", "bool", or "[elem]" for slices);
// the plane checks buffered outputs against these declarations at
// merge time.
package schema

import (
	"fmt"
	"reflect"
)

// Type validates a single value.
type Type interface {
	Name() string
	Validate(value any) error
}

// Decls maps key names to their expected types.
type Decls map[string]Type

// Check validates present keys against their declarations. Absent keys
// are not an error here; presence is the plane's concern.
func (d Decls) Check(values map[string]any) error {
	var errs []error
	for key, typ := range d {
		v, ok := values[key]
		if !ok || v == nil {
			continue
		}
		if err := typ.Validate(v); err != nil {
			errs = append(errs, &KeyError{Key: key, Reason: err.Error(), Value: v})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

type stringType struct{}

func (stringType) Name() string { return "string" }
func (stringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

type intType struct{}

func (intType) Name() string { return "int" }
func (intType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		// JSON unmarshaling yields float64; accept whole numbers.
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got non-whole float")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

type floatType struct{}

func (floatType) Name() string { return "float" }
func (floatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", value)
	}
}

type boolType struct{}

func (boolType) Name() string { return "bool" }
func (boolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

type sliceType struct {
	elem Type
}

func (t sliceType) Name() string { return "[" + t.elem.Name() + "]" }
func (t sliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// ParseType converts a type name into a validator.
func ParseType(name string) (Type, error) {
	if len(name) > 2 && name[0] == '[' && name[len(name)-1] == ']' {
		elem, err := ParseType(name[1 : len(name)-1])
		if err != nil {
			return nil, err
		}
		return sliceType{elem: elem}, nil
	}
	switch name {
	case "string":
		return stringType{}, nil
	case "int":
		return intType{}, nil
	case "float":
		return floatType{}, nil
	case "bool":
		return boolType{}, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", name)
	}
}

// Parse converts a key-to-type-name map into declarations.
func Parse(names map[string]string) (Decls, error) {
	out := make(Decls, len(names))
	for key, name := range names {
		t, err := ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}
		out[key] = t
	}
	return out, nil
}
