package feeders

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

const tagEnv = "env"

// lookupFunc returns the raw value for a variable name.
type lookupFunc func(name string) (string, bool)

// feedFromLookup walks target and sets every field carrying an `env` tag from
// lookup. Nested structs are walked with the same prefix; non-nil struct
// pointers are followed.
func feedFromLookup(target any, prefix string, lookup lookupFunc) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrTargetNotStructPointer
	}
	return feedStruct(v.Elem(), prefix, lookup)
}

func feedStruct(v reflect.Value, prefix string, lookup lookupFunc) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		switch {
		case field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}):
			if err := feedStruct(field, prefix, lookup); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
			if !field.IsNil() {
				if err := feedStruct(field.Elem(), prefix, lookup); err != nil {
					return err
				}
			}
			continue
		}

		tag, ok := fieldType.Tag.Lookup(tagEnv)
		if !ok || tag == "" || tag == "-" {
			continue
		}
		name := strings.ToUpper(tag)
		if prefix != "" {
			name = strings.ToUpper(prefix) + "_" + name
		}
		raw, found := lookup(name)
		if !found || raw == "" {
			continue
		}
		if err := setFieldValue(field, raw); err != nil {
			return fmt.Errorf("%s (%s): %w", fieldType.Name, name, err)
		}
	}
	return nil
}

// setFieldValue converts raw to the field's type and assigns it.
func setFieldValue(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}

	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFieldConversion, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String {
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p).Convert(field.Type().Elem()))
			}
		}
		field.Set(out)
		return nil
	}

	converted, err := cast.FromType(raw, field.Type())
	if err != nil {
		return fmt.Errorf("%w: %v: %w", ErrFieldConversion, field.Type(), err)
	}
	field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	return nil
}
