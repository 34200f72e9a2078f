// Package udf holds the extension functions exposed to query hosts and the
// table that maps their names to implementations.
package udf

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgtype"
)

var (
	ErrInvalidName      = errors.New("invalid function name")
	ErrDuplicate        = errors.New("function already registered")
	ErrFunctionNotFound = errors.New("function not found")
	ErrArity            = errors.New("wrong number of arguments")
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Func evaluates one call. An argument with Valid == false is absent (NULL).
type Func func(args []pgtype.Text) pgtype.Bool

// Descriptor is the metadata a host sees for a registered function.
// None of it affects evaluation.
type Descriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Author      string   `json:"author"`
	Params      []string `json:"params"`
}

type entry struct {
	desc Descriptor
	fn   Func
}

// Registry maps function names to implementations. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]entry)}
}

// Register adds fn under desc.Name. Names are lower snake case.
func (r *Registry) Register(desc Descriptor, fn Func) error {
	if !namePattern.MatchString(desc.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, desc.Name)
	}
	if fn == nil {
		return fmt.Errorf("register %s: nil func", desc.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[desc.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, desc.Name)
	}
	desc.Params = append([]string(nil), desc.Params...)
	r.funcs[desc.Name] = entry{desc: desc, fn: fn}
	return nil
}

// Lookup returns the descriptor for name. Lookup is case-insensitive.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	e, err := r.get(name)
	if err != nil {
		return Descriptor{}, err
	}
	return e.desc, nil
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.funcs))
	for _, e := range r.funcs {
		out = append(out, e.desc)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke calls the named function. Lookup and arity failures are returned as
// errors; an absent argument is not an error and yields whatever the function
// decides, usually NULL.
func (r *Registry) Invoke(name string, args []pgtype.Text) (pgtype.Bool, error) {
	e, err := r.get(name)
	if err != nil {
		return pgtype.Bool{}, err
	}
	if len(args) != len(e.desc.Params) {
		return pgtype.Bool{}, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, e.desc.Name, len(e.desc.Params), len(args))
	}
	return e.fn(args), nil
}

func (r *Registry) get(name string) (entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.funcs[strings.ToLower(name)]
	if !ok {
		return entry{}, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return e, nil
}
