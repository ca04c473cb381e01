package auth

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// backendMessages maps known backend error substrings to short, localized,
// actionable strings. Matching is case-insensitive and ordered: the first
// match wins. Unknown errors pass through untranslated.
var backendMessages = []struct {
	substr  string
	message string
}{
	{"invalid login credentials", "Email ou senha incorretos"},
	{"invalid_grant", "Email ou senha incorretos"},
	{"email not confirmed", "Confirme seu email antes de entrar"},
	{"user not found", "Email ou senha incorretos"},
	{"user already registered", "Este email já está cadastrado"},
	{"email rate limit exceeded", "Muitas tentativas, aguarde alguns minutos"},
	{"password should be at least", "A senha deve ter pelo menos 8 caracteres"},
	{"new password should be different", "A nova senha deve ser diferente da atual"},
	{"token has expired", "Link expirado, solicite um novo"},
	{"otp_expired", "Link expirado, solicite um novo"},
	{"failed to fetch", "Erro de conexão, tente novamente"},
	{"networkerror", "Erro de conexão, tente novamente"},
	{"timeout", "Erro de conexão, tente novamente"},
}

// TranslateAuthError converts a backend error into a user-facing message.
// Unknown errors keep their original text so operators still see the cause.
func TranslateAuthError(err error) string {
	if err == nil {
		return ""
	}
	raw := err.Error()
	lower := strings.ToLower(raw)
	for _, entry := range backendMessages {
		if strings.Contains(lower, entry.substr) {
			return entry.message
		}
	}
	return raw
}

// RemainingAttemptsMessage appends the remaining-attempt count to a base
// message so the user knows how close the lockout is.
func RemainingAttemptsMessage(base string, remaining int) string {
	if remaining <= 0 {
		return base
	}
	unit := "tentativas restantes"
	if remaining == 1 {
		unit = "tentativa restante"
	}
	return fmt.Sprintf("%s. Você tem %d %s", base, remaining, unit)
}

// LockoutMessage states how long the user has to wait before retrying.
func LockoutMessage(lockedUntil, now time.Time) string {
	minutes := int(math.Ceil(lockedUntil.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	if minutes == 1 {
		return "Conta temporariamente bloqueada. Tente novamente em 1 minuto"
	}
	return fmt.Sprintf("Conta temporariamente bloqueada. Tente novamente em %d minutos", minutes)
}

// LowAttemptsWarning is the non-blocking warning surfaced when the user is
// close to being locked out.
func LowAttemptsWarning(remaining int) string {
	if remaining == 1 {
		return "Atenção: última tentativa antes do bloqueio temporário"
	}
	return fmt.Sprintf("Atenção: %d tentativas antes do bloqueio temporário", remaining)
}
