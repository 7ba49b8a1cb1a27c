package args

import (
	"context"
	"fmt"
	"reflect"

	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/internal/sync"
)

func ArgsToInputs(c converter.Converter, args ...any) ([]payload.Payload, error) {
	inputs := make([]payload.Payload, 0, len(args))

	for _, arg := range args {
		input, err := c.To(arg)
		if err != nil {
			return nil, fmt.Errorf("converting args to inputs: %w", err)
		}
		inputs = append(inputs, input)
	}

	return inputs, nil
}

// InputsToArgs converts serialized inputs to the argument list of fn. The
// second return value indicates whether fn expects a context as its first
// argument.
func InputsToArgs(c converter.Converter, fn reflect.Value, inputs []payload.Payload) ([]reflect.Value, bool, error) {
	addContext := false

	fnT := fn.Type()
	numArgs := fnT.NumIn()
	args := make([]reflect.Value, numArgs)

	input := 0
	for i := 0; i < numArgs; i++ {
		argT := fnT.In(i)

		if i == 0 && (isWorkflowContext(argT) || isContext(argT)) {
			addContext = true
			continue
		}

		if input >= len(inputs) {
			return nil, false, fmt.Errorf("mismatched argument count: %d arguments expected, %d inputs given", expectedArgs(fnT), len(inputs))
		}

		arg := reflect.New(argT).Interface()
		if err := c.From(inputs[input], arg); err != nil {
			return nil, false, fmt.Errorf("converting input for argument %d: %w", i, err)
		}

		args[i] = reflect.ValueOf(arg).Elem()
		input++
	}

	if input != len(inputs) {
		return nil, false, fmt.Errorf("mismatched argument count: %d arguments expected, %d inputs given", expectedArgs(fnT), len(inputs))
	}

	return args, addContext, nil
}

func expectedArgs(fnT reflect.Type) int {
	n := fnT.NumIn()
	if n > 0 && (isWorkflowContext(fnT.In(0)) || isContext(fnT.In(0))) {
		n--
	}
	return n
}

func isWorkflowContext(inType reflect.Type) bool {
	contextElem := reflect.TypeOf((*sync.Context)(nil)).Elem()
	return inType != nil && inType.Implements(contextElem)
}

func isContext(inType reflect.Type) bool {
	contextElem := reflect.TypeOf((*context.Context)(nil)).Elem()
	return inType != nil && inType.Implements(contextElem)
}
