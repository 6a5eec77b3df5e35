// Package validation содержит функции валидации входных данных.
package validation

// IsValidLogin проверяет логин: от 3 до 64 символов, латиница, цифры,
// дефис и подчёркивание.
func IsValidLogin(login string) bool {
	if len(login) < 3 || len(login) > 64 {
		return false
	}
	for _, ch := range login {
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}
	return true
}

// IsValidAccount проверяет ссылку на счёт расчётного слоя: непустая строка
// до 128 печатных ASCII-символов без пробелов.
func IsValidAccount(account string) bool {
	if account == "" || len(account) > 128 {
		return false
	}
	for _, ch := range account {
		if ch <= ' ' || ch > '~' {
			return false
		}
	}
	return true
}

// IsValidSourceID проверяет идентификатор источника навыка по тем же
// правилам, что и счёт: внешняя система передаёт его как непрозрачную строку.
func IsValidSourceID(id string) bool {
	return IsValidAccount(id)
}
