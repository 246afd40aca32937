// Package policy describes how an operation is cached.
//
// # Overview
//
// A Descriptor states which mediator applies (read-through, update, or
// invalidate), how the key is obtained (from one argument, from every
// element of a list, or from a fixed assigned key), the key namespace, and
// the entry expiration. Descriptors are built once from a Spec and never
// change:
//
//	getUser := policy.MustNew(policy.Spec{
//		Name:              "users.get",
//		Namespace:         "users",
//		KeyIndex:          0,
//		ExpirationSeconds: 300,
//	})
//
// # Validation
//
// New rejects, with an InvalidPolicy error:
//
//   - an empty namespace, or one containing the key separator
//   - a negative expiration
//   - a key index below KeyFromResult, or KeyFromResult on a read-through policy
//   - an assign policy without an assigned key, or an assigned key on any other mode
//
// # Registry and YAML
//
// Policies can be declared in configuration and looked up by operation name:
//
//	policies:
//	  - name: users.get_many
//	    mode: multi
//	    namespace: users
//	    key_index: 0
//	    expiration_seconds: 60
//	  - name: users.delete
//	    action: invalidate
//	    namespace: users
//	    key_index: -1
//
// Load them with Registry.LoadFile and fetch them with Registry.Lookup.
package policy
