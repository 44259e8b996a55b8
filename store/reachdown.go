package store

import (
	"reflect"
)

// embeddedFields are the struct fields probed when a layer does not declare
// Unwrap. Order matters: DB is checked before Inner.
var embeddedFields = []string{"DB", "Inner"}

// Reachdown walks down a chain of wrapped stores and returns the first layer
// whose type tag equals typ, or for which visit returns true. When a filter
// is given and nothing matches, it returns nil. With neither filter it
// returns s itself.
//
// A layer implementing Downer resolves the rest of the chain itself.
func Reachdown(s Store, typ string, visit func(Store) bool) Store {
	if s == nil {
		return nil
	}
	if d, ok := s.(Downer); ok {
		return d.Down(typ, visit)
	}
	if typ == "" && visit == nil {
		return s
	}
	if typ != "" {
		if t, ok := s.(Typer); ok && t.Type() == typ {
			return s
		}
	}
	if visit != nil && visit(s) {
		return s
	}
	if inner := innerOf(s); inner != nil {
		return Reachdown(inner, typ, visit)
	}
	return nil
}

// ReachdownType returns the first layer of the chain implementing T.
func ReachdownType[T any](s Store) (T, bool) {
	found := Reachdown(s, "", func(l Store) bool {
		_, ok := l.(T)
		return ok
	})
	if found == nil {
		var zero T
		return zero, false
	}
	t, ok := found.(T)
	return t, ok
}

func innerOf(s Store) Store {
	if w, ok := s.(Wrapper); ok {
		if inner := w.Unwrap(); !isNil(inner) {
			return inner
		}
		return nil
	}
	v := reflect.ValueOf(s)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	for _, name := range embeddedFields {
		f := v.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			continue
		}
		if isLoose(f.Interface()) {
			return f.Interface().(Store)
		}
	}
	return nil
}

// isLoose reports whether v looks like a usable store: a non-nil value with
// the full Store contract and a Status method.
func isLoose(v interface{}) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(Store); !ok {
		return false
	}
	if _, ok := v.(Statuser); !ok {
		return false
	}
	return !isNil(v)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
