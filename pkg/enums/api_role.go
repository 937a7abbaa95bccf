package enums

// APIRole scopes what a bearer token may do. Members manage their own
// organization's interviews; admins additionally manage plans and overage
// approvals across organizations.
type APIRole string

const (
	APIRoleMember APIRole = "member"
	APIRoleAdmin  APIRole = "admin"
)

// IsValid reports whether the value is known.
func (r APIRole) IsValid() bool {
	return r == APIRoleMember || r == APIRoleAdmin
}

// String implements fmt.Stringer.
func (r APIRole) String() string {
	return string(r)
}
