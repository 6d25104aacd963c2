package lifecycle

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// RegistrationDraft is the raw registration form. ConfirmPassword is checked
// only when set.
type RegistrationDraft struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
	DisplayName     string `json:"display_name,omitempty"`
	Phone           string `json:"phone,omitempty"`
}

func (d RegistrationDraft) normalize() RegistrationDraft {
	d.Username = strings.TrimSpace(d.Username)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.DisplayName = strings.TrimSpace(d.DisplayName)
	d.Phone = strings.TrimSpace(d.Phone)
	return d
}

// request validates the draft against policy and returns the payload sent to
// the backend, with the phone number in E.164 form.
func (d RegistrationDraft) request(policy PasswordPolicy, region string) (RegistrationRequest, error) {
	d = d.normalize()

	err := validation.ValidateStruct(&d,
		validation.Field(&d.Username, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&d.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&d.Password, validation.By(passwordRule(policy))),
		validation.Field(&d.ConfirmPassword, validation.By(func(value any) error {
			if d.ConfirmPassword == "" {
				return nil
			}
			return ValidateStringEquals(d.Password)(value)
		})),
		validation.Field(&d.DisplayName, validation.RuneLength(0, 200)),
		validation.Field(&d.Phone, validation.By(phoneRule(region))),
	)
	if err != nil {
		return RegistrationRequest{}, validationError("registration details are invalid", err)
	}

	req := RegistrationRequest{
		Username:    d.Username,
		Email:       d.Email,
		Password:    d.Password,
		DisplayName: d.DisplayName,
	}
	if d.Phone != "" {
		req.Phone, _ = normalizePhone(d.Phone, region)
	}
	return req, nil
}

// ValidateStringEquals checks that the validated string equals str.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func passwordRule(policy PasswordPolicy) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		return policy.Check(s)
	}
}

func phoneRule(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if _, err := normalizePhone(s, region); err != nil {
			return err
		}
		return nil
	}
}

func normalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", errors.New("must be a valid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("must be a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func validateLogin(identifier, password string) error {
	err := validation.Errors{
		"identifier": validation.Validate(strings.TrimSpace(identifier), validation.Required),
		"password":   validation.Validate(password, validation.Required),
	}.Filter()
	if err != nil {
		return validationError("username/email and password are required", err)
	}
	return nil
}

func validateEmail(email string) error {
	err := validation.Errors{
		"email": validation.Validate(strings.TrimSpace(email), validation.Required, is.Email),
	}.Filter()
	if err != nil {
		return validationError("a valid email is required", err)
	}
	return nil
}

func validateCode(field, value string) error {
	err := validation.Errors{
		field: validation.Validate(strings.TrimSpace(value), validation.Required),
	}.Filter()
	if err != nil {
		return validationError(field+" is required", err)
	}
	return nil
}

// validateNewPassword checks the password policy and the confirmation.
func validateNewPassword(policy PasswordPolicy, password, confirm string) error {
	err := validation.Errors{
		"new_password":     validation.Validate(password, validation.By(passwordRule(policy))),
		"confirm_password": validation.Validate(confirm, validation.By(ValidateStringEquals(password))),
	}.Filter()
	if err != nil {
		return validationError("new password is invalid", err)
	}
	return nil
}

// validationError turns ozzo errors into an ErrValidation clone with a
// field -> message map in the metadata.
func validationError(message string, err error) error {
	fields := fieldErrors(err)
	meta := map[string]any{}
	if len(fields) > 0 {
		meta["fields"] = fields
	}
	return newError(ErrValidation, message, meta)
}

// FieldErrors returns the per field messages attached to a validation error.
func FieldErrors(err error) map[string]string {
	meta := errorMetadata(err)
	if meta == nil {
		return nil
	}
	fields, _ := meta["fields"].(map[string]string)
	return fields
}

func fieldErrors(err error) map[string]string {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		if err == nil {
			return nil
		}
		return map[string]string{"_": err.Error()}
	}

	out := make(map[string]string, len(errs))
	for field, fieldErr := range errs {
		if fieldErr == nil {
			continue
		}
		var nested validation.Errors
		if errors.As(fieldErr, &nested) {
			for nk, nv := range fieldErrors(nested) {
				out[field+"."+nk] = nv
			}
			continue
		}
		out[field] = fieldErr.Error()
	}
	return out
}
