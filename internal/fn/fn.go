package fn

import (
	"reflect"
	"runtime"
	"strings"
)

// Name returns the name of the given function. Method values lose their
// receiver, bound methods keep only the method name.
func Name(f any) string {
	fnName := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()

	s := strings.Split(fnName, ".")
	fnName = s[len(s)-1]

	return strings.TrimSuffix(fnName, "-fm")
}
