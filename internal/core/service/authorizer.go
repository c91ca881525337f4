package service

import "github.com/99minutos/ledger-gateway/internal/core/domain"

// Authorize decides whether cred may perform an operation open to allowed.
// A nil credential is always denied; callers report that case as
// unauthenticated rather than forbidden.
func Authorize(cred *domain.Credential, allowed domain.RoleSet) domain.Decision {
	if cred == nil {
		return domain.DecisionDeny
	}
	if !allowed.Contains(cred.Role) {
		return domain.DecisionDeny
	}
	return domain.DecisionAllow
}
