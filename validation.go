package auth

import (
	"errors"
	"time"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

const (
	// MinPasswordLength is the floor enforced everywhere a password is set.
	MinPasswordLength = 8
	// Collaborator age window enforced during activation.
	MinCollaboratorAge = 16
	MaxCollaboratorAge = 100
)

// Genders accepted on the collaborator profile form.
var validGenders = []any{"male", "female", "other", "prefer_not_to_say"}

// ValidateSignInInput rejects empty or malformed credentials before any
// throttle or network work happens.
func ValidateSignInInput(email, password string) error {
	err := validation.Errors{
		"email":    validation.Validate(email, validation.Required, is.Email),
		"password": validation.Validate(password, validation.Required),
	}.Filter()

	if err != nil {
		clone := ErrInvalidCredentials.Clone()
		clone.Message = "Email ou senha incorretos"
		clone.Source = err
		return clone
	}
	return nil
}

// ValidatePassword enforces the activation password policy: at least eight
// characters, and neither purely numeric nor purely alphabetic.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrNoEmptyString
	}

	if len(password) < MinPasswordLength {
		return weakPassword("A senha deve ter pelo menos 8 caracteres")
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLetter || !hasDigit {
		return weakPassword("A senha deve conter letras e números")
	}

	return nil
}

func weakPassword(msg string) error {
	clone := ErrNoEmptyString.Clone()
	clone.Message = msg
	return clone.WithTextCode(TextCodeWeakPassword)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("as senhas não coincidem")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map for form rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// ProfileCompletion is the extra data required from collaborators whose
// registration is still incomplete.
type ProfileCompletion struct {
	Phone     string     `json:"phone"`
	BirthDate *time.Time `json:"birth_date"`
	Gender    string     `json:"gender"`
	State     string     `json:"state"`
	City      string     `json:"city"`
	Country   string     `json:"country"`
}

// Validate runs the profile completion rules against a reference time.
func (p ProfileCompletion) Validate(now time.Time) error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Gender, validation.Required, validation.In(validGenders...)),
		validation.Field(&p.State, validation.Required, validation.Length(2, 100)),
		validation.Field(&p.City, validation.Required, validation.Length(2, 100)),
		validation.Field(&p.Country, validation.Required, validation.Length(2, 100)),
	)
	if err != nil {
		return err
	}

	if p.BirthDate == nil {
		return validation.Errors{"birth_date": errors.New("data de nascimento é obrigatória")}
	}

	age := yearsBetween(*p.BirthDate, now)
	if age < MinCollaboratorAge || age > MaxCollaboratorAge {
		return validation.Errors{"birth_date": errors.New("idade deve estar entre 16 e 100 anos")}
	}

	if p.Phone != "" {
		if _, perr := NormalizePhone(p.Phone, "BR"); perr != nil {
			return validation.Errors{"phone": errors.New("telefone inválido")}
		}
	}

	return nil
}

// NormalizePhone parses and reformats a phone number in E.164 form.
func NormalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	anniversary := from.AddDate(years, 0, 0)
	if anniversary.After(to) {
		years--
	}
	return years
}
