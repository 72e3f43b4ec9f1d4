package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"instaflow/models"

	"github.com/badoux/checkmail"
)

// ValidationError is a user-facing rejection of lead input.
// Message is safe to send back to the end user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

const maxTextAnswerLength = 500

var (
	emailPattern        = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	emailExtractPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneStripPattern   = regexp.MustCompile(`[\s\-().+]`)
	digitsPattern       = regexp.MustCompile(`^[0-9]+$`)
)

var fakeEmailLocalParts = map[string]struct{}{
	"test": {}, "testing": {}, "tester": {}, "abc": {}, "abcd": {}, "abcde": {},
	"asdf": {}, "asdfgh": {}, "qwerty": {}, "example": {}, "sample": {}, "demo": {},
	"fake": {}, "user": {}, "admin": {}, "none": {}, "null": {}, "noreply": {},
	"xyz": {}, "aaaa": {}, "email": {}, "mail": {}, "name": {},
}

var fakeEmailDomains = map[string]struct{}{
	"example.com": {}, "example.org": {}, "example.net": {}, "test.com": {},
	"abc.com": {}, "xyz.com": {}, "email.com": {}, "domain.com": {},
	"fake.com": {}, "mailinator.com": {}, "test.test": {}, "asdf.com": {},
}

var fakePhoneNumbers = map[string]struct{}{
	"1234567890": {}, "0123456789": {}, "9876543210": {}, "0987654321": {},
	"12345678901": {}, "123456789012": {}, "1234512345": {}, "1212121212": {},
	"1231231234": {}, "5555555555": {},
}

// ValidateEmail checks an email against format and obviously-fake heuristics
// and returns it trimmed and lowercased.
func ValidateEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", newValidationError("email", "Please enter your email address.")
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return "", newValidationError("email", "That doesn't look like an email address. Please send it like name@gmail.com.")
	}
	local, domain := email[:at], email[at+1:]

	dot := strings.LastIndex(domain, ".")
	if dot <= 0 || len(domain)-dot-1 < 2 {
		return "", newValidationError("email", "The domain of that email looks incomplete. Please check the part after the @.")
	}

	if !emailPattern.MatchString(email) || checkmail.ValidateFormat(email) != nil {
		return "", newValidationError("email", "That email contains characters that aren't allowed. Please check it and try again.")
	}

	if len(local) < 4 {
		return "", newValidationError("email", "The part before the @ is too short. Please send your full email address.")
	}
	if digitsPattern.MatchString(local) {
		return "", newValidationError("email", "An email address can't be only numbers before the @. Please send your real email.")
	}
	if _, fake := fakeEmailLocalParts[local]; fake {
		return "", newValidationError("email", "That looks like a placeholder email. Please send the address you actually use.")
	}
	if _, fake := fakeEmailDomains[domain]; fake {
		return "", newValidationError("email", "Emails at %s can't receive messages. Please send the address you actually use.", domain)
	}

	return email, nil
}

// ExtractEmail finds the first email-like token in free text and validates it
func ExtractEmail(text string) (string, error) {
	candidate := emailExtractPattern.FindString(text)
	if candidate == "" {
		return "", newValidationError("email", "I couldn't find an email address in your message.")
	}
	return ValidateEmail(candidate)
}

// NormalizePhone strips formatting characters from a phone number
func NormalizePhone(raw string) string {
	return phoneStripPattern.ReplaceAllString(strings.TrimSpace(raw), "")
}

// ValidatePhone checks a phone number and returns its digits only
func ValidatePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", newValidationError("phone", "Please enter your phone number.")
	}

	phone := NormalizePhone(raw)
	if !digitsPattern.MatchString(phone) {
		return "", newValidationError("phone", "A phone number can only contain digits, spaces, dashes, dots, brackets and a leading +.")
	}
	if len(phone) < 10 || len(phone) > 15 {
		return "", newValidationError("phone", "Phone numbers need 10 to 15 digits including the country code.")
	}
	if strings.Count(phone, phone[:1]) == len(phone) {
		return "", newValidationError("phone", "That number repeats a single digit. Please send your real phone number.")
	}
	if _, fake := fakePhoneNumbers[phone]; fake {
		return "", newValidationError("phone", "That looks like a placeholder number. Please send your real phone number.")
	}

	return phone, nil
}

// ValidateText accepts any non-blank answer within a sane length
func ValidateText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", newValidationError("text", "Please type a reply so we can save it.")
	}
	if utf8.RuneCountInString(text) > maxTextAnswerLength {
		return "", newValidationError("text", "That answer is too long. Please keep it under %d characters.", maxTextAnswerLength)
	}
	return text, nil
}

// ValidateField validates input for the given field type
func ValidateField(fieldType models.FieldType, raw string) (string, error) {
	switch fieldType {
	case models.FieldEmail:
		return ValidateEmail(raw)
	case models.FieldPhone:
		return ValidatePhone(raw)
	case models.FieldText:
		return ValidateText(raw)
	}
	return "", fmt.Errorf("unsupported field type %q", fieldType)
}
