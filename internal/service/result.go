package service

// ErrorKind names why an account operation failed.
type ErrorKind string

const (
	DuplicateEmail       ErrorKind = "DuplicateEmail"
	UserNotFound         ErrorKind = "UserNotFound"
	WrongPassword        ErrorKind = "WrongPassword"
	VerificationNotFound ErrorKind = "VerificationNotFound"
	InvalidSignature     ErrorKind = "InvalidSignature"
	Malformed            ErrorKind = "Malformed"
	PersistenceFailure   ErrorKind = "PersistenceFailure"
	NotificationFailure  ErrorKind = "NotificationFailure"

	CreateAccountFailed ErrorKind = "CreateAccountFailed"
	LoginFailed         ErrorKind = "LoginFailed"
	UpdateProfileFailed ErrorKind = "UpdateProfileFailed"
	VerifyEmailFailed   ErrorKind = "VerifyEmailFailed"
)

var messages = map[ErrorKind]string{
	DuplicateEmail:       "There is a user with that email already",
	UserNotFound:         "User not found",
	WrongPassword:        "Wrong password",
	VerificationNotFound: "Verification not found",
	InvalidSignature:     "Invalid token signature",
	Malformed:            "Malformed token",
	PersistenceFailure:   "Internal server error",
	NotificationFailure:  "Could not send notification",
	CreateAccountFailed:  "Couldn't create account",
	LoginFailed:          "Couldn't log user in",
	UpdateProfileFailed:  "Couldn't update profile",
	VerifyEmailFailed:    "Couldn't verify email",
}

// Message returns the text shown to API users.
func (k ErrorKind) Message() string {
	if m, ok := messages[k]; ok {
		return m
	}

	return string(k)
}

// Result is what every account operation returns. Error is only set when OK
// is false and Data is only meaningful when OK is true.
type Result[T any] struct {
	OK    bool
	Error ErrorKind
	Data  T
}

func succeed[T any](data T) Result[T] {
	return Result[T]{OK: true, Data: data}
}

func fail[T any](kind ErrorKind) Result[T] {
	return Result[T]{Error: kind}
}
