package authority

// VerifyResult is the authority's answer to an access-token check.
// Expired means the token was correct but past its validity window and
// a refresh can recover it; Invalid means the token itself is wrong and
// only a new login helps.
type VerifyResult string

const (
	VerifyValid   VerifyResult = "Valid"
	VerifyExpired VerifyResult = "Expired"
	VerifyInvalid VerifyResult = "Invalid"
)

// TokenPair is an access/refresh token pair as issued by the authority.
// Both fields are opaque to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Credentials is the result of a successful login.
type Credentials struct {
	UserID string
	TokenPair
}

// LoginParams carries the login form fields.
type LoginParams struct {
	Account  string `json:"account" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=employee boss"`
}

// RegisterParams carries the employee registration form fields.
// Registration happens before any session exists and issues no tokens.
type RegisterParams struct {
	Account  string `json:"account" validate:"required"`
	Password string `json:"password" validate:"required"`
	BossID   string `json:"boss_id" validate:"required"`
}

type loginResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		UserID       string `json:"user_id"`
	} `json:"data"`
}

type verifyResponse struct {
	Result string `json:"result"`
}

type refreshResponse struct {
	NewAccessToken  string `json:"new_access_token"`
	NewRefreshToken string `json:"new_refresh_token"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
