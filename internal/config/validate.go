package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	vOnce     sync.Once
	validate  *validator.Validate
	translate ut.Translator
)

// validatorInstance returns the shared validator. Field names in messages
// are the dotted config keys taken from the cfg struct tag.
func validatorInstance() (*validator.Validate, ut.Translator) {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			if key := fld.Tag.Get("cfg"); key != "" {
				return key
			}
			return fld.Name
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		validate, translate = v, trans
	})
	return validate, translate
}

// Validate checks value ranges and enumerations. Every violation is
// reported, one per line.
func (c *Config) Validate() error {
	v, trans := validatorInstance()

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(trans))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
