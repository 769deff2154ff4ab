package auth

// Well-known permission strings.
const (
	PermSystemAdmin       = "system:admin"
	PermNotificationsSend = "notifications:send"
	PermAPIKeysManage     = "apikeys:manage"
)

// Admit decides whether id may use an operation requiring perm.
//
//   - same-origin callers are always admitted
//   - users need perm or system:admin
//   - API keys need perm exactly; system:admin grants nothing extra
//
// A nil identity is never admitted.
func Admit(id Identity, perm string) bool {
	switch v := id.(type) {
	case SameOriginIdentity, *SameOriginIdentity:
		return true
	case *UserIdentity:
		return v != nil && (hasPermission(v.Permissions, perm) || hasPermission(v.Permissions, PermSystemAdmin))
	case *APIKeyIdentity:
		return v != nil && hasPermission(v.Permissions, perm)
	}
	return false
}

// Check is Admit returning a *PermissionError on rejection. Granted
// permissions are disclosed for API keys only, so a user session cannot
// enumerate the permission model.
func Check(id Identity, perm string) error {
	if Admit(id, perm) {
		return nil
	}
	pe := &PermissionError{Required: perm}
	if k, ok := id.(*APIKeyIdentity); ok && k != nil {
		pe.Granted = append([]string{}, k.Permissions...)
	}
	return pe
}
