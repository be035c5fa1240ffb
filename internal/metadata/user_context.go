package metadata

// UserContext describes the acting user for a request. It feeds the formula
// USER* functions and the event envelope actor.
type UserContext struct {
	ID     string   `json:"id"`
	Login  string   `json:"login"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Cargo  string   `json:"cargo,omitempty"`
	Tenant string   `json:"tenant"`
	Roles  []string `json:"roles,omitempty"`
}

func (u *UserContext) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}
