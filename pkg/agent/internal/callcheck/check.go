package callcheck

import (
	"reflect"

	"github.com/pkg/errors"
)

// Predicate calls the niladic bool method methodName on recv.
func Predicate(recv interface{}, methodName string) (bool, error) {
	val := reflect.ValueOf(recv)
	method := val.MethodByName(methodName)
	if !method.IsValid() {
		return false, errors.Errorf("no predicate method named %q on %T", methodName, recv)
	}
	if method.Type().NumIn() != 0 {
		return false, errors.Errorf("predicate method %q takes arguments", methodName)
	}
	res := method.Call(nil)
	if len(res) != 1 {
		return false, errors.Errorf("expected single return value from predicate method")
	}
	if res[0].Kind() != reflect.Bool {
		return false, errors.Errorf("return value from predicate was not a bool")
	}
	return res[0].Bool(), nil
}
