package user

// Principal identifies an authenticated caller. Identity management lives in
// an external provider; this service only ever sees the opaque id and email.
type Principal struct {
	UserID string
	Email  string
}
