package repositorycache

import (
	"time"

	"github.com/goliatone/go-cache-policy/policy"
)

// Policies groups the descriptors a CachedRepository applies, one per kind
// of repository call.
type Policies struct {
	GetByID         *policy.Descriptor
	GetByIdentifier *policy.Descriptor
	GetByIDs        *policy.Descriptor
	Save            *policy.Descriptor
	SaveMany        *policy.Descriptor
	Evict           *policy.Descriptor
	EvictMany       *policy.Descriptor
	Delete          *policy.Descriptor
}

// NewPolicies builds the decorator policies for namespace. Records are
// keyed by ID under namespace and by identifier under namespace.identifier.
func NewPolicies(namespace string, ttl time.Duration) (Policies, error) {
	specs := PolicySpecs(namespace, ttl)

	built := make([]*policy.Descriptor, len(specs))
	for i, spec := range specs {
		d, err := policy.New(spec)
		if err != nil {
			return Policies{}, err
		}
		built[i] = d
	}

	return Policies{
		GetByID:         built[0],
		GetByIdentifier: built[1],
		GetByIDs:        built[2],
		Save:            built[3],
		SaveMany:        built[4],
		Evict:           built[5],
		EvictMany:       built[6],
		Delete:          built[7],
	}, nil
}

// PolicySpecs returns the specs NewPolicies builds, in field order of
// Policies.
func PolicySpecs(namespace string, ttl time.Duration) []policy.Spec {
	seconds := int(ttl / time.Second)
	return []policy.Spec{
		{
			Name:              namespace + ".get_by_id",
			Action:            policy.ActionReadThrough,
			Mode:              policy.ModeSingle,
			Namespace:         namespace,
			ExpirationSeconds: seconds,
		},
		{
			Name:              namespace + ".get_by_identifier",
			Action:            policy.ActionReadThrough,
			Mode:              policy.ModeSingle,
			Namespace:         namespace + ".identifier",
			ExpirationSeconds: seconds,
		},
		{
			Name:              namespace + ".get_by_ids",
			Action:            policy.ActionReadThrough,
			Mode:              policy.ModeMulti,
			Namespace:         namespace,
			ExpirationSeconds: seconds,
		},
		{
			Name:              namespace + ".save",
			Action:            policy.ActionUpdate,
			Mode:              policy.ModeSingle,
			Namespace:         namespace,
			KeyIndex:          policy.KeyFromResult,
			ExpirationSeconds: seconds,
		},
		{
			Name:              namespace + ".save_many",
			Action:            policy.ActionUpdate,
			Mode:              policy.ModeMulti,
			Namespace:         namespace,
			KeyIndex:          policy.KeyFromResult,
			ExpirationSeconds: seconds,
		},
		{
			Name:      namespace + ".evict",
			Action:    policy.ActionInvalidate,
			Mode:      policy.ModeSingle,
			Namespace: namespace,
			KeyIndex:  policy.KeyFromResult,
		},
		{
			Name:      namespace + ".evict_many",
			Action:    policy.ActionInvalidate,
			Mode:      policy.ModeMulti,
			Namespace: namespace,
			KeyIndex:  policy.KeyFromResult,
		},
		{
			Name:      namespace + ".delete",
			Action:    policy.ActionInvalidate,
			Mode:      policy.ModeSingle,
			Namespace: namespace,
		},
	}
}

func (p Policies) register(r *policy.Registry) error {
	for _, d := range p.all() {
		if _, err := r.Register(d.Spec()); err != nil {
			return err
		}
	}
	return nil
}

func (p Policies) all() []*policy.Descriptor {
	return []*policy.Descriptor{
		p.GetByID, p.GetByIdentifier, p.GetByIDs,
		p.Save, p.SaveMany,
		p.Evict, p.EvictMany, p.Delete,
	}
}
