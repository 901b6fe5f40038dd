package serverutils

import "github.com/gofiber/fiber/v2"

// HTTPError lets services signal a status code without depending on fiber.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

func NewBadRequestError(message string) *HTTPError {
	return &HTTPError{Code: fiber.StatusBadRequest, Message: message}
}

func NewNotFoundError(message string) *HTTPError {
	return &HTTPError{Code: fiber.StatusNotFound, Message: message}
}

func NewConflictError(message string) *HTTPError {
	return &HTTPError{Code: fiber.StatusConflict, Message: message}
}

func NewServiceUnavailableError(message string) *HTTPError {
	return &HTTPError{Code: fiber.StatusServiceUnavailable, Message: message}
}
