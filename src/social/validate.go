package social

import (
	"errors"
	"fmt"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the struct tags of a decoded message. Failures have the
// Malformed kind and name the first offending field.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return common.NewErr("Message", common.Malformed, fmt.Sprintf("%s: %s", verrs[0].Namespace(), verrs[0].Tag()))
	}

	return common.WrapErr("Message", common.Malformed, fmt.Sprintf("%T", v), err)
}

// ValidateID checks a bare request or invite id.
func ValidateID(id string) error {
	if err := validate.Var(id, "required,max=128,excludesall=/"); err != nil {
		return common.NewErr("Message", common.Malformed, "id")
	}
	return nil
}
