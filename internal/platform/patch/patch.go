// Package patch merges partial updates into stored values.
//
// A patch is a struct of pointer fields of the same type as the target. A nil
// pointer leaves the target field untouched. A string pointer to an empty
// (or all-blank) string clears the target field to nil. Any other non-nil
// pointer replaces the target field.
package patch

import (
	"reflect"
	"strings"
)

// Apply merges src into dst. Only exported pointer fields take part.
func Apply[T any](dst *T, src T) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src)
	if sv.Kind() != reflect.Struct {
		return
	}
	applyStruct(dv, sv)
}

func applyStruct(dv, sv reflect.Value) {
	t := sv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		s := sv.Field(i)
		d := dv.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			applyStruct(d, s)
			continue
		}
		if s.Kind() != reflect.Pointer || s.IsNil() {
			continue
		}
		if str, ok := s.Interface().(*string); ok {
			trimmed := strings.TrimSpace(*str)
			if trimmed == "" {
				d.Set(reflect.Zero(f.Type))
				continue
			}
			d.Set(reflect.ValueOf(&trimmed))
			continue
		}
		cp := reflect.New(f.Type.Elem())
		cp.Elem().Set(s.Elem())
		d.Set(cp)
	}
}

// Text returns a trimmed copy of s, or nil when s is nil or blank.
func Text(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// Clone returns a copy of v whose exported pointer fields point to fresh
// values, recursing into exported embedded structs.
func Clone[T any](v T) T {
	out := v
	ov := reflect.ValueOf(&out).Elem()
	if ov.Kind() == reflect.Struct {
		cloneStruct(ov)
	}
	return out
}

func cloneStruct(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fv := v.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			cloneStruct(fv)
			continue
		}
		if fv.Kind() != reflect.Pointer || fv.IsNil() {
			continue
		}
		cp := reflect.New(f.Type.Elem())
		cp.Elem().Set(fv.Elem())
		fv.Set(cp)
	}
}
