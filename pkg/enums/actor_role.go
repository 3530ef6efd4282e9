package enums

// ActorRole identifies what a caller is allowed to do. Admins manage runs and
// resolve disputes, finance approves adjustments, creators see their own
// statements.
type ActorRole string

const (
	ActorRoleAdmin   ActorRole = "admin"
	ActorRoleFinance ActorRole = "finance"
	ActorRoleCreator ActorRole = "creator"
)

func (r ActorRole) IsValid() bool {
	switch r {
	case ActorRoleAdmin, ActorRoleFinance, ActorRoleCreator:
		return true
	default:
		return false
	}
}

func ParseActorRole(value string) (ActorRole, bool) {
	role := ActorRole(value)
	if role.IsValid() {
		return role, true
	}
	return "", false
}
