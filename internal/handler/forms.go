package handler

import (
    "errors"
    "fmt"
    "strconv"
    "strings"

    "github.com/go-playground/validator/v10"
)

type loginForm struct {
    Username string `form:"username" validate:"required"`
    Password string `form:"password" validate:"required"`
}

// ConfirmPassword is optional so that plain three-field clients still
// register.
type registerForm struct {
    Username        string `form:"username" validate:"required,min=2,max=20"`
    Email           string `form:"email" validate:"required,email"`
    Password        string `form:"password" validate:"required,maxbytes=72"`
    ConfirmPassword string `form:"confirm_password" validate:"omitempty,eqfield=Password"`
}

// FormValidator plugs go-playground/validator into echo.Context.Validate.
type FormValidator struct {
    v *validator.Validate
}

func NewFormValidator() *FormValidator {
    v := validator.New()
    // bcrypt only hashes the first 72 bytes and rejects longer input.
    _ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
        n, err := strconv.Atoi(fl.Param())
        return err == nil && len(fl.Field().String()) <= n
    })
    return &FormValidator{v: v}
}

func (fv *FormValidator) Validate(i interface{}) error {
    return fv.v.Struct(i)
}

var fieldLabels = map[string]string{
    "Username":        "Username",
    "Email":           "Email",
    "Password":        "Password",
    "ConfirmPassword": "Confirm password",
}

// validationMessages turns validator errors into one line per field.
func validationMessages(err error) []string {
    var verrs validator.ValidationErrors
    if !errors.As(err, &verrs) {
        return []string{"Invalid form submission."}
    }
    out := make([]string, 0, len(verrs))
    for _, fe := range verrs {
        label := fieldLabels[fe.Field()]
        if label == "" {
            label = fe.Field()
        }
        switch fe.Tag() {
        case "required":
            out = append(out, label+" is required.")
        case "min", "max":
            out = append(out, fmt.Sprintf("%s must be between 2 and 20 characters.", label))
        case "maxbytes":
            out = append(out, fmt.Sprintf("%s must be at most %s characters.", label, fe.Param()))
        case "email":
            out = append(out, "Enter a valid email address.")
        case "eqfield":
            out = append(out, "Passwords must match.")
        default:
            out = append(out, label+" is invalid.")
        }
    }
    return out
}

// normalize trims the text inputs the way the stores compare them, so
// whitespace-only values fail "required".
func (f *loginForm) normalize() {
    f.Username = strings.TrimSpace(f.Username)
}

func (f *registerForm) normalize() {
    f.Username = strings.TrimSpace(f.Username)
    f.Email = strings.TrimSpace(f.Email)
}
