package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	safeStringRe    = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)
	ibanRe          = regexp.MustCompile(`^GR\d{15}$`)
	accountNumberRe = regexp.MustCompile(`^\d{10}$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("iban", validateIBAN)
		_ = v.RegisterValidation("account_number", validateAccountNumber)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateIBAN accepts GR followed by exactly 15 digits.
func validateIBAN(fl validator.FieldLevel) bool {
	return ValidIBAN(fl.Field().String())
}

// validateAccountNumber accepts exactly 10 digits.
func validateAccountNumber(fl validator.FieldLevel) bool {
	return ValidAccountNumber(fl.Field().String())
}

// ValidIBAN reports whether s is a well-formed IBAN.
func ValidIBAN(s string) bool {
	return ibanRe.MatchString(s)
}

// ValidAccountNumber reports whether s is exactly 10 digits.
func ValidAccountNumber(s string) bool {
	return accountNumberRe.MatchString(s)
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer. Fields tagged
// `sanitize:"-"` are left as sent.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() || rt.Field(i).Tag.Get("sanitize") == "-" {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
