package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/enqbot/enqbot/internal/fn"
)

// Workflow is any function with a workflow.Context first argument returning
// (error) or (result, error).
type Workflow = any

// Activity is any function with a context.Context first argument returning
// (error) or (result, error).
type Activity = any

type Registry struct {
	mu sync.Mutex

	workflows  map[string]Workflow
	activities map[string]Activity
}

func New() *Registry {
	return &Registry{
		workflows:  map[string]Workflow{},
		activities: map[string]Activity{},
	}
}

func (r *Registry) RegisterWorkflow(workflow Workflow) error {
	if err := checkFunc(workflow); err != nil {
		return fmt.Errorf("registering workflow: %w", err)
	}

	name := fn.Name(workflow)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[name]; ok {
		return fmt.Errorf("workflow %q already registered", name)
	}

	r.workflows[name] = workflow

	return nil
}

func (r *Registry) RegisterActivity(activity Activity) error {
	if err := checkFunc(activity); err != nil {
		return fmt.Errorf("registering activity: %w", err)
	}

	name := fn.Name(activity)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activities[name]; ok {
		return fmt.Errorf("activity %q already registered", name)
	}

	r.activities[name] = activity

	return nil
}

func (r *Registry) GetWorkflow(name string) (Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if workflow, ok := r.workflows[name]; ok {
		return workflow, nil
	}

	return nil, fmt.Errorf("workflow %q not found", name)
}

func (r *Registry) GetActivity(name string) (Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if activity, ok := r.activities[name]; ok {
		return activity, nil
	}

	return nil, fmt.Errorf("activity %q not found", name)
}

func checkFunc(f any) error {
	t := reflect.TypeOf(f)
	if t == nil || t.Kind() != reflect.Func {
		return fmt.Errorf("not a function")
	}

	if t.NumIn() == 0 {
		return fmt.Errorf("function must accept a context as its first parameter")
	}

	if t.NumOut() == 0 || t.NumOut() > 2 {
		return fmt.Errorf("function must return (error) or (result, error)")
	}

	errType := reflect.TypeOf((*error)(nil)).Elem()
	if !t.Out(t.NumOut() - 1).Implements(errType) {
		return fmt.Errorf("function must return error as its last return value")
	}

	return nil
}
