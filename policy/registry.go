package policy

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-cache-policy/cache"
)

// Registry holds descriptors keyed by operation name. Policies are
// validated when registered, so lookups never fail on shape.
type Registry struct {
	descriptors *xsync.MapOf[string, *Descriptor]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: xsync.NewMapOf[string, *Descriptor]()}
}

// Register validates spec and stores it under spec.Name.
func (r *Registry) Register(spec Spec) (*Descriptor, error) {
	if spec.Name == "" {
		return nil, cache.NewInvalidPolicy(cache.CodeInvalidDescriptor, "policy name must contain at least 1 character")
	}

	d, err := New(spec)
	if err != nil {
		return nil, err
	}

	if _, loaded := r.descriptors.LoadOrStore(spec.Name, d); loaded {
		return nil, cache.NewInvalidPolicy(cache.CodeInvalidDescriptor,
			fmt.Sprintf("policy %q is already registered", spec.Name))
	}
	return d, nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	return r.descriptors.Load(name)
}

// MustLookup is Lookup for policies known to exist. It panics otherwise.
func (r *Registry) MustLookup(name string) *Descriptor {
	d, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("cache policy %q is not registered", name))
	}
	return d
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.descriptors.Size())
	r.descriptors.Range(func(name string, _ *Descriptor) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Len returns the number of registered policies.
func (r *Registry) Len() int {
	return r.descriptors.Size()
}

// File is the YAML layout read by LoadYAML.
type File struct {
	Policies []Spec `yaml:"policies"`
}

// LoadYAML registers every policy in the document read from src. All
// policies are validated before any of them is registered.
func (r *Registry) LoadYAML(src io.Reader) ([]*Descriptor, error) {
	var file File
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode cache policies")
	}

	seen := make(map[string]struct{}, len(file.Policies))
	for i, spec := range file.Policies {
		if _, dup := seen[spec.Name]; dup && spec.Name != "" {
			return nil, cache.NewInvalidPolicy(cache.CodeInvalidDescriptor,
				fmt.Sprintf("policy %q is declared twice", spec.Name))
		}
		seen[spec.Name] = struct{}{}

		if _, err := New(spec); err != nil {
			return nil, goerrors.Wrap(err, cache.CategoryInvalidPolicy, fmt.Sprintf("policies[%d]", i))
		}
	}

	out := make([]*Descriptor, 0, len(file.Policies))
	for _, spec := range file.Policies {
		d, err := r.Register(spec)
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
	return out, nil
}

// LoadFile is LoadYAML for a file path.
func (r *Registry) LoadFile(path string) ([]*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "read cache policies")
	}
	return r.LoadYAML(bytes.NewReader(data))
}
