package authapi

import (
	"time"

	"torii/cmd/identity"
)

type signupRequest struct {
	UserName     string `json:"user_name"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type loginRequest struct {
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userResponse struct {
	ID             string     `json:"id"`
	UserName       string     `json:"user_name"`
	EmailAddress   string     `json:"email_address"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoggedInAt *time.Time `json:"last_logged_in_at,omitempty"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:             u.ID,
		UserName:       u.UserName,
		EmailAddress:   u.EmailAddress,
		CreatedAt:      u.CreatedAt,
		LastLoggedInAt: u.LastLoggedInAt,
	}
}
