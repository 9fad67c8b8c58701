package upload

// ValidationError ошибка проверки партии до любых обращений к бэкенду.
// Текст предназначен пользователю и показывается как есть.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError проверяет тип ошибки
func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}
