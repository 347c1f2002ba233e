// Package validator checks the structural well-formedness of facts and node inputs
// before they may touch the registry or the store.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/aretw0/netviz/pkg/domain"
	playground "github.com/go-playground/validator/v10"
)

// factValidate is shared by every check. Field names in reports follow the JSON tags.
var factValidate *playground.Validate

func init() {
	factValidate = playground.New()
	factValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	factValidate.RegisterStructValidation(predicateTypeIsString, domain.Predicate{})
	// Store adapters join hashes and types with control characters to build keys.
	_ = factValidate.RegisterValidation("nocontrol", func(fl playground.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
	})
}

// predicateTypeIsString rejects predicates whose decoded "type" was not a JSON string.
func predicateTypeIsString(sl playground.StructLevel) {
	p := sl.Current().Interface().(domain.Predicate)
	if !p.TypeIsString() {
		sl.ReportError(p.Type, "type", "Type", "string", "")
	}
}

// ValidateFact returns a domain.ErrValidation error describing the first problems found,
// or nil when the fact may enter the store.
func ValidateFact(f *domain.Fact) error {
	if f == nil {
		return fmt.Errorf("%w: fact is missing", domain.ErrValidation)
	}
	return wrap(factValidate.Struct(f))
}

// ValidateNode checks a node input carries a non-empty hash.
func ValidateNode(n *domain.NodeInput) error {
	if n == nil {
		return fmt.Errorf("%w: node is missing", domain.ErrValidation)
	}
	return wrap(factValidate.Struct(n))
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}

func describe(fe playground.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "string":
		return field + " must be a string"
	case "nocontrol":
		return field + " must not contain control characters"
	default:
		return field + " failed " + fe.Tag()
	}
}
