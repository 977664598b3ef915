package fakezeug

import "reflect"

// Target is the result of reflecting a prototype object for unmarshaling.
// It gives a consistent way of referring to the actual object that should be
// unmarshaled as opposed to the object produced for dependency injection.
type Target struct {
	// Component refers to the actual value that should be returned from an
	// uber/fx constructor.  This holds the value of the actual component that
	// participates in dependency injection.
	Component reflect.Value

	// UnmarshalTo is the value that should be unmarshaled.  This value is always
	// a pointer.  If Component is a pointer, UnmarshalTo will be the same value.
	// Otherwise, UnmarshalTo will be a pointer to the Component value.
	UnmarshalTo reflect.Value
}

// NewTarget reflects a prototype object that describes the target for an
// unmarshaling operation.
//
// The prototype may be a struct value, in which case a new struct is created
// with fields set to the same values as the prototype prior to unmarshaling,
// and the component is a struct value of the same type.  The prototype may
// also be a pointer to a struct, nil or not; in that case a new struct is
// allocated, initialized from the prototype when non-nil, and the component
// is a pointer to the new struct.
//
// If the prototype does not refer to a struct, the results of this function
// are undefined.
func NewTarget(prototype interface{}) (t Target) {
	pvalue := reflect.ValueOf(prototype)
	if pvalue.Kind() == reflect.Ptr {
		t.UnmarshalTo = reflect.New(pvalue.Type().Elem())
		if !pvalue.IsNil() {
			t.UnmarshalTo.Elem().Set(pvalue.Elem())
		}

		t.Component = t.UnmarshalTo
	} else {
		t.UnmarshalTo = reflect.New(pvalue.Type())
		t.UnmarshalTo.Elem().Set(pvalue)
		t.Component = t.UnmarshalTo.Elem()
	}

	return
}
