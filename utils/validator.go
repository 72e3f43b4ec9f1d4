package utils

import (
	"errors"
	"strings"

	"instaflow/models"

	"github.com/go-playground/validator/v10"
)

var validate = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("trigger_type", func(fl validator.FieldLevel) bool {
		_, err := models.ParseTriggerType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("action_type", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := models.ParseActionType(s)
		return err == nil
	})
	return v
}

// ValidateStruct runs tag validation on API request bodies
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	var messages []string
	for _, err := range validationErrors {
		field := strings.ToLower(err.Field())
		param := err.Param()

		switch err.Tag() {
		case "required":
			messages = append(messages, field+" is required")
		case "min":
			messages = append(messages, field+" must be at least "+param+" characters")
		case "max":
			messages = append(messages, field+" must be at most "+param+" characters")
		case "email":
			messages = append(messages, field+" must be a valid email")
		case "trigger_type":
			messages = append(messages, field+" must be one of new_message, keyword, post_comment, live_comment")
		case "action_type":
			messages = append(messages, field+" must be send_dm")
		default:
			messages = append(messages, field+" is invalid")
		}
	}

	return errors.New(strings.Join(messages, ", "))
}
