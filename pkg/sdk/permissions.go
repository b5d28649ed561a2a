package sdk

import "sort"

// ActionRead is the action assumed when a permission check names none.
const ActionRead = "read"

// Requirement is a single resource/action permission.
type Requirement struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

func (r Requirement) String() string {
	return r.Resource + ":" + r.action()
}

func (r Requirement) action() string {
	if r.Action == "" {
		return ActionRead
	}
	return r.Action
}

// Evaluator answers permission and role questions against a cached identity
// snapshot. It fails closed: missing identity, role or permission entries deny.
// An Evaluator never performs I/O and is safe to use from any goroutine.
type Evaluator struct {
	identity   *Identity
	superRoles map[string]struct{}
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithSuperRoles names roles that hold every permission. This is the only place
// the bypass is applied; role checks (HasRole/HasAnyRole) are unaffected.
func WithSuperRoles(names ...string) EvaluatorOption {
	return func(e *Evaluator) {
		for _, name := range names {
			if name != "" {
				e.superRoles[name] = struct{}{}
			}
		}
	}
}

// NewEvaluator creates an Evaluator over identity. A nil identity denies everything.
func NewEvaluator(identity *Identity, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		identity:   identity.clone(),
		superRoles: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HasPermission reports whether the identity may perform action on resource.
// An empty action means ActionRead.
func (e *Evaluator) HasPermission(resource, action string) bool {
	if e == nil || e.identity == nil || e.identity.Role == nil {
		return false
	}
	if _, ok := e.superRoles[e.identity.Role.Name]; ok {
		return true
	}
	actions, ok := e.identity.Role.Permissions[resource]
	if !ok {
		return false
	}
	return actions[Requirement{Resource: resource, Action: action}.action()]
}

// Allows reports whether every requirement holds. It returns the ones that do not.
func (e *Evaluator) Allows(requirements ...Requirement) (bool, []Requirement) {
	var missing []Requirement
	for _, req := range requirements {
		if !e.HasPermission(req.Resource, req.Action) {
			missing = append(missing, Requirement{Resource: req.Resource, Action: req.action()})
		}
	}
	return len(missing) == 0, missing
}

// HasRole reports whether the cached role name equals name.
func (e *Evaluator) HasRole(name string) bool {
	if e == nil || e.identity == nil || e.identity.Role == nil || name == "" {
		return false
	}
	return e.identity.Role.Name == name
}

// HasAnyRole reports whether HasRole holds for any of names.
func (e *Evaluator) HasAnyRole(names ...string) bool {
	for _, name := range names {
		if e.HasRole(name) {
			return true
		}
	}
	return false
}

// Grants lists the explicitly granted permissions, sorted by resource then action.
func (e *Evaluator) Grants() []Requirement {
	if e == nil || e.identity == nil || e.identity.Role == nil {
		return nil
	}
	var grants []Requirement
	for resource, actions := range e.identity.Role.Permissions {
		for action, granted := range actions {
			if granted {
				grants = append(grants, Requirement{Resource: resource, Action: action})
			}
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Resource != grants[j].Resource {
			return grants[i].Resource < grants[j].Resource
		}
		return grants[i].Action < grants[j].Action
	})
	return grants
}

// IsSuperRole reports whether the cached role bypasses permission checks.
func (e *Evaluator) IsSuperRole() bool {
	if e == nil || e.identity == nil || e.identity.Role == nil {
		return false
	}
	_, ok := e.superRoles[e.identity.Role.Name]
	return ok
}
