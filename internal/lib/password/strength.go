package password

import "strings"

// Symbols: допустимые спецсимволы пароля, хотя бы один из них обязателен.
const Symbols = "!@#$%^&*"

// MinLength: минимальная длина пароля.
const MinLength = 6

// StrengthMessage: текст ошибки, который показывается пользователю.
const StrengthMessage = "Password must be at least 6 characters and contain at least 1 number and 1 special character"

// IsStrong проверяет пароль: не короче MinLength, есть цифра и символ из Symbols,
// остальные символы: латинские буквы или цифры.
func IsStrong(password string) bool {
	if len(password) < MinLength {
		return false
	}
	var hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(Symbols, r):
			hasSymbol = true
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return hasDigit && hasSymbol
}
