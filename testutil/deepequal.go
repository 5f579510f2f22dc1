package testutil

import (
	"fmt"
	"reflect"
)

type comparer struct {
	diff string
}

func (c *comparer) notEqual(path string, v1, v2 interface{}) bool {
	c.diff = fmt.Sprintf("%s: %#v != %#v", path, v1, v2)
	return false
}

func valueOf(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	} else if v.CanInterface() {
		return v.Interface()
	}
	return v.String()
}

func (c *comparer) equal(path string, v1, v2 reflect.Value) bool {
	if !v1.IsValid() || !v2.IsValid() {
		if v1.IsValid() != v2.IsValid() {
			return c.notEqual(path, valueOf(v1), valueOf(v2))
		}
		return true
	}
	if v1.Type() != v2.Type() {
		return c.notEqual(path+".(type)", v1.Type().String(), v2.Type().String())
	}

	switch v1.Kind() {
	case reflect.Bool:
		if v1.Bool() != v2.Bool() {
			return c.notEqual(path, v1.Bool(), v2.Bool())
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v1.Int() != v2.Int() {
			return c.notEqual(path, valueOf(v1), valueOf(v2))
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr:
		if v1.Uint() != v2.Uint() {
			return c.notEqual(path, valueOf(v1), valueOf(v2))
		}
	case reflect.Float32, reflect.Float64:
		if v1.Float() != v2.Float() {
			return c.notEqual(path, valueOf(v1), valueOf(v2))
		}
	case reflect.Complex64, reflect.Complex128:
		if v1.Complex() != v2.Complex() {
			return c.notEqual(path, v1.Complex(), v2.Complex())
		}
	case reflect.String:
		if v1.String() != v2.String() {
			return c.notEqual(path, valueOf(v1), valueOf(v2))
		}
	case reflect.Array:
		for i := 0; i < v1.Len(); i++ {
			if !c.equal(fmt.Sprintf("%s[%d]", path, i), v1.Index(i), v2.Index(i)) {
				return false
			}
		}
	case reflect.Slice:
		if v1.IsNil() != v2.IsNil() {
			return c.notEqual(path, valueOf(v1), valueOf(v2))
		} else if v1.Len() != v2.Len() {
			return c.notEqual(path+".len", v1.Len(), v2.Len())
		} else if v1.Pointer() == v2.Pointer() {
			return true
		}
		for i := 0; i < v1.Len(); i++ {
			if !c.equal(fmt.Sprintf("%s[%d]", path, i), v1.Index(i), v2.Index(i)) {
				return false
			}
		}
	case reflect.Interface, reflect.Ptr:
		if v1.IsNil() || v2.IsNil() {
			if v1.IsNil() != v2.IsNil() {
				return c.notEqual(path, valueOf(v1), valueOf(v2))
			}
			return true
		} else if v1.Kind() == reflect.Ptr && v1.Pointer() == v2.Pointer() {
			return true
		}
		return c.equal(path, v1.Elem(), v2.Elem())
	case reflect.Struct:
		for i := 0; i < v1.NumField(); i++ {
			fp := path + "." + v1.Type().Field(i).Name
			if !c.equal(fp, v1.Field(i), v2.Field(i)) {
				return false
			}
		}
	case reflect.Map:
		if v1.IsNil() != v2.IsNil() {
			return c.notEqual(path, valueOf(v1), valueOf(v2))
		} else if v1.Len() != v2.Len() {
			return c.notEqual(path+".len", v1.Len(), v2.Len())
		}
		for _, k := range v1.MapKeys() {
			kp := fmt.Sprintf("%s[%v]", path, k)
			val2 := v2.MapIndex(k)
			if !val2.IsValid() {
				return c.notEqual(kp, "present", "missing")
			}
			if !c.equal(kp, v1.MapIndex(k), val2) {
				return false
			}
		}
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if v1.Pointer() != v2.Pointer() {
			return c.notEqual(path, v1.Pointer(), v2.Pointer())
		}
	}
	return true
}

// DeepEqual is like reflect.DeepEqual, but the optional trc is set to the path of the first
// difference. Cycles are not detected.
func DeepEqual(x, y interface{}, trc ...*string) bool {
	if len(trc) > 1 {
		panic("testutil.DeepEqual: more than one optional argument")
	}

	var c comparer
	eq := c.equal("value", reflect.ValueOf(x), reflect.ValueOf(y))
	if len(trc) == 1 && trc[0] != nil {
		*trc[0] = c.diff
	}
	return eq
}
