package models

// Session is the locally stored login.
type Session struct {
	UserID   FlexString `json:"userid"`
	UserName string     `json:"user_name,omitempty"`
	Name     string     `json:"name,omitempty"`
	Token    string     `json:"token,omitempty"`
}

// Valid reports whether the session identifies a user.
func (s *Session) Valid() bool {
	return s != nil && s.UserID != ""
}
