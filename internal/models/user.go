package models

// User is the authenticated account
type User struct {
	ID        string  `json:"_id"`
	Email     string  `json:"email"`
	DiskSpace int64   `json:"diskSpace"`
	UsedSpace int64   `json:"userSpace"`
	Avatar    *string `json:"avatar,omitempty"`
}

// HasAvatar reports whether an avatar is set
func (u User) HasAvatar() bool {
	return u.Avatar != nil && *u.Avatar != ""
}

// Credentials are exchanged for a session token
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is what registration and login return
type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}
