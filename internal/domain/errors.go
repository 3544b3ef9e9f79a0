package domain

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) WithMessage(msg string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: msg,
		Status:  e.Status,
	}
}

// Is matches on Code so WithMessage copies still satisfy errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrInvalidRequest = &AppError{
		Code:    "INVALID_REQUEST",
		Message: "Invalid request",
		Status:  400,
	}

	ErrInternalServerError = &AppError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "Internal server error",
		Status:  500,
	}

	ErrNotFound = &AppError{
		Code:    "NOT_FOUND",
		Message: "Not found",
		Status:  404,
	}

	ErrChatNotFound = &AppError{
		Code:    "CHAT_NOT_FOUND",
		Message: "Chat not found",
		Status:  404,
	}

	ErrMessageNotFound = &AppError{
		Code:    "MESSAGE_NOT_FOUND",
		Message: "Message not found or not owned by user",
		Status:  404,
	}

	ErrInvalidToken = &AppError{
		Code:    "TOKEN_INVALID",
		Message: "Token is invalid",
		Status:  401,
	}

	ErrUnauthorizedError = &AppError{
		Code:    "UNAUTHORIZED",
		Message: "Unauthorized",
		Status:  401,
	}

	ErrForbidden = &AppError{
		Code:    "FORBIDDEN",
		Message: "Insufficient permissions",
		Status:  403,
	}

	ErrNotParticipant = &AppError{
		Code:    "NOT_PARTICIPANT",
		Message: "You are not a participant of this chat",
		Status:  403,
	}

	ErrQueueFull = &AppError{
		Code:    "QUEUE_FULL",
		Message: "Delivery queue is full",
		Status:  503,
	}
)
