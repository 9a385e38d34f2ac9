package schema

import (
	"encoding/json"
	"reflect"
)

// GeoPoint is a [lat, lng] pair stored as a geopoint field.
type GeoPoint [2]float64

var (
	geoPointType   = reflect.TypeFor[GeoPoint]()
	rawMessageType = reflect.TypeFor[json.RawMessage]()
)

// TypeFor maps a Go type onto a Typesense field type. Pointers are looked
// through; struct types map to object and must be handled by the caller
// when they should be flattened instead.
func TypeFor(t reflect.Type) (FieldType, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case geoPointType:
		return TypeGeopoint, true
	case rawMessageType:
		return TypeAuto, true
	}

	switch t.Kind() {
	case reflect.String:
		return TypeString, true
	case reflect.Bool:
		return TypeBool, true
	case reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return TypeInt32, true
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return TypeInt64, true
	case reflect.Float32, reflect.Float64:
		return TypeFloat, true
	case reflect.Struct:
		return TypeObject, true
	case reflect.Map, reflect.Interface:
		return TypeAuto, true
	case reflect.Array:
		if t.Len() == 2 && t.Elem().Kind() == reflect.Float64 {
			return TypeGeopoint, true
		}
		return arrayOf(t.Elem())
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			// encoding/json writes byte slices as base64 strings.
			return TypeString, true
		}
		return arrayOf(t.Elem())
	}
	return "", false
}

func arrayOf(elem reflect.Type) (FieldType, bool) {
	ft, ok := TypeFor(elem)
	if !ok {
		return "", false
	}
	switch ft {
	case TypeAuto:
		return TypeAuto, true
	case TypeStringArray, TypeInt32Array, TypeInt64Array, TypeFloatArray,
		TypeBoolArray, TypeGeopoints, TypeObjectArray:
		// Typesense has no nested arrays.
		return "", false
	}
	return ft.Array(), true
}
