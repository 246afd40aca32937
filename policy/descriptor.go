package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-cache-policy/cache"
)

// Action selects the mediator a policy drives.
type Action string

const (
	ActionReadThrough Action = "read_through"
	ActionUpdate      Action = "update"
	ActionInvalidate  Action = "invalidate"
)

// Mode selects how the cache key of a call is obtained.
type Mode string

const (
	// ModeSingle keys one cache entry by the identity of one argument or of
	// the result.
	ModeSingle Mode = "single"
	// ModeMulti keys one entry per element of a list argument or result.
	ModeMulti Mode = "multi"
	// ModeAssign keys a singleton entry by a fixed object id.
	ModeAssign Mode = "assign"
)

// KeyFromResult is the KeyIndex telling update and invalidate policies to
// take the identity from the operation's result instead of an argument.
const KeyFromResult = -1

// Spec is the mutable, decodable form of a policy. Build a Descriptor from
// it with New.
type Spec struct {
	Name              string `yaml:"name" json:"name"`
	Action            Action `yaml:"action" json:"action"`
	Mode              Mode   `yaml:"mode" json:"mode"`
	Namespace         string `yaml:"namespace" json:"namespace"`
	KeyIndex          int    `yaml:"key_index" json:"key_index"`
	ExpirationSeconds int    `yaml:"expiration_seconds" json:"expiration_seconds"`
	AssignedKey       string `yaml:"assigned_key" json:"assigned_key"`
}

// Descriptor is a validated, immutable caching policy. Descriptors are
// safe to share between goroutines.
type Descriptor struct {
	name        string
	action      Action
	mode        Mode
	namespace   string
	keyIndex    int
	expiration  time.Duration
	assignedKey string
}

// New validates spec and returns its Descriptor. An empty Action defaults
// to ActionReadThrough and an empty Mode to ModeSingle. Validation failures
// are InvalidPolicy errors.
func New(spec Spec) (*Descriptor, error) {
	if spec.Action == "" {
		spec.Action = ActionReadThrough
	}
	if spec.Mode == "" {
		spec.Mode = ModeSingle
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	d := &Descriptor{
		name:        spec.Name,
		action:      spec.Action,
		mode:        spec.Mode,
		namespace:   spec.Namespace,
		keyIndex:    spec.KeyIndex,
		expiration:  time.Duration(spec.ExpirationSeconds) * time.Second,
		assignedKey: spec.AssignedKey,
	}
	if d.mode == ModeAssign {
		d.keyIndex = 0
	}
	return d, nil
}

// MustNew is New for package level policies. It panics on invalid input.
func MustNew(spec Spec) *Descriptor {
	d, err := New(spec)
	if err != nil {
		panic(err)
	}
	return d
}

// Validate checks spec without building a Descriptor.
func (s Spec) Validate() error {
	readThrough := s.Action == ActionReadThrough
	assign := s.Mode == ModeAssign

	err := validation.ValidateStruct(&s,
		validation.Field(&s.Action, validation.Required,
			validation.In(ActionReadThrough, ActionUpdate, ActionInvalidate)),
		validation.Field(&s.Mode, validation.Required,
			validation.In(ModeSingle, ModeMulti, ModeAssign)),
		validation.Field(&s.Namespace, validation.Required,
			validation.Length(0, cache.MaxNamespaceLength), validation.By(noSeparator)),
		validation.Field(&s.ExpirationSeconds, validation.Min(0)),
		validation.Field(&s.KeyIndex,
			validation.Min(KeyFromResult),
			validation.When(readThrough && !assign,
				validation.Min(0).Error("read-through policies must name an argument")),
			validation.When(assign, validation.Max(0).Error("is not used by assign policies")),
		),
		validation.Field(&s.AssignedKey,
			validation.When(assign, validation.Required),
			validation.When(!assign, validation.Empty.Error("is only valid for assign policies")),
		),
	)
	if err == nil {
		return nil
	}

	verr := goerrors.FromOzzoValidation(err, invalidMessage(s.Name))
	verr.Category = cache.CategoryInvalidPolicy
	verr.TextCode = cache.CodeInvalidDescriptor
	return verr
}

func noSeparator(value any) error {
	ns, _ := value.(string)
	if strings.Contains(ns, cache.KeySeparator) {
		return errors.New("must not contain " + cache.KeySeparator)
	}
	return nil
}

func invalidMessage(name string) string {
	if name == "" {
		return "invalid cache policy"
	}
	return fmt.Sprintf("invalid cache policy %q", name)
}

// Name returns the operation name the policy was registered under, if any.
func (d *Descriptor) Name() string { return d.name }

// Action returns the mediator this policy drives.
func (d *Descriptor) Action() Action { return d.action }

// Mode returns the key mode.
func (d *Descriptor) Mode() Mode { return d.mode }

// Namespace returns the key namespace.
func (d *Descriptor) Namespace() string { return d.namespace }

// KeyIndex returns the position of the identifying argument, or
// KeyFromResult.
func (d *Descriptor) KeyIndex() int { return d.keyIndex }

// KeyFromResult reports whether the identity comes from the result.
func (d *Descriptor) KeyFromResult() bool { return d.keyIndex == KeyFromResult }

// Expiration returns the entry ttl. Zero means entries never expire.
func (d *Descriptor) Expiration() time.Duration { return d.expiration }

// AssignedKey returns the fixed object id of an assign policy.
func (d *Descriptor) AssignedKey() string { return d.assignedKey }

// Spec returns a copy of the input the descriptor was built from.
func (d *Descriptor) Spec() Spec {
	return Spec{
		Name:              d.name,
		Action:            d.action,
		Mode:              d.mode,
		Namespace:         d.namespace,
		KeyIndex:          d.keyIndex,
		ExpirationSeconds: int(d.expiration / time.Second),
		AssignedKey:       d.assignedKey,
	}
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s/%s/%s ns=%s key_index=%d ttl=%s", d.name, d.action, d.mode, d.namespace, d.keyIndex, d.expiration)
}
