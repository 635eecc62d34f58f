// Package docvalidate checks documents at the store boundary against their
// `validate` struct tags. Malformed documents are rejected with
// shared.ErrInvalidArgument before they reach the engines.
package docvalidate

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})
	return instance
}

// Struct validates doc and returns a DomainError of kind ErrInvalidArgument
// listing every failing field.
func Struct(domain, op string, doc any) error {
	err := get().Struct(doc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.WrapError(domain, op, shared.ErrInvalidArgument, "document failed validation", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			fields = append(fields, fmt.Sprintf("%s(%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
		}
	}
	return shared.NewDomainError(domain, op, shared.ErrInvalidArgument,
		"malformed document: "+strings.Join(fields, ", "))
}
