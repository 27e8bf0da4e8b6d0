package auth

// PermissionSet is the set of permission codes granted to a caller.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from a code list.
func NewPermissionSet(codes []string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// Can reports whether the set grants one code.
func (p PermissionSet) Can(code string) bool {
	_, ok := p[code]
	return ok
}

// CanAll reports whether every code is granted.
func (p PermissionSet) CanAll(codes ...string) bool {
	for _, c := range codes {
		if !p.Can(c) {
			return false
		}
	}
	return true
}

// CanAny reports whether at least one code is granted.
func (p PermissionSet) CanAny(codes ...string) bool {
	for _, c := range codes {
		if p.Can(c) {
			return true
		}
	}
	return false
}

// Codes returns the sorted-independent code list, for JSON responses.
func (p PermissionSet) Codes() []string {
	out := make([]string, 0, len(p))
	for c := range p {
		out = append(out, c)
	}
	return out
}
