package workflow

import (
	"strings"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// Authorizer decides whether an actor may review a claim. Self-review is checked
// separately and is never allowed.
type Authorizer struct {
	roles     map[string]map[string]bool
	adminRole string
}

// NewAuthorizer builds an authorizer from an actor -> roles directory
func NewAuthorizer(directory map[string][]string, adminRole string) *Authorizer {
	roles := make(map[string]map[string]bool, len(directory))
	for actor, list := range directory {
		set := make(map[string]bool, len(list))
		for _, r := range list {
			set[strings.TrimSpace(r)] = true
		}
		roles[actor] = set
	}
	return &Authorizer{roles: roles, adminRole: adminRole}
}

// CanReview reports whether actorID may decide the claim given its current assignment
func (a *Authorizer) CanReview(actorID string, claim *entity.Claim) bool {
	if actorID == "" || actorID == entity.SystemActor {
		return false
	}
	if len(a.roles) == 0 {
		return true
	}

	roles, known := a.roles[actorID]
	if !known {
		return false
	}
	if a.adminRole != "" && roles[a.adminRole] {
		return true
	}

	assignee := claim.Escalation.CurrentApproverID
	switch {
	case assignee == "":
		return true
	case strings.HasPrefix(assignee, entity.RolePrefix):
		return roles[strings.TrimPrefix(assignee, entity.RolePrefix)]
	default:
		return assignee == actorID
	}
}
