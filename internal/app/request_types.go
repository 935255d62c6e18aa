package app

// SignupRequest is the input for creating an account.
type SignupRequest struct {
	EmpNumber string `json:"emp_number" validate:"required,max=20"`
	Password  string `json:"password" validate:"required,signup_password"`
	Name      string `json:"name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"required,max=20"`
}

// LoginRequest carries credentials.
type LoginRequest struct {
	EmpNumber string `json:"emp_number" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

// ChangePasswordRequest is the input for ChangePassword.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// PasswordRequest carries a single password (verify, withdrawal).
type PasswordRequest struct {
	Password string `json:"password"`
}
