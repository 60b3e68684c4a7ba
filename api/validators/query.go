package validators

import (
	"net/http"
	"reflect"
	"strings"

	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
)

// PublishOfferQuery is the query string of the single-offer publish endpoint.
type PublishOfferQuery struct {
	Store       string `query:"store" validate:"required,max=64,code"`
	UpdatedBy   string `query:"updatedBy" validate:"omitempty,max=128"`
	OfferTypeID string `query:"offerTypeId" validate:"omitempty,oneof=1 2 3"`
}

// PublishCampaignQuery is the query string of the campaign publish endpoint.
type PublishCampaignQuery struct {
	UpdatedBy string `query:"updatedBy" validate:"omitempty,max=128"`
}

// BindQuery copies query parameters into the string fields of dest tagged
// with `query` and validates the result.
func BindQuery(r *http.Request, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return pkgerrors.New(pkgerrors.CodeInternal, "query destination must be a struct pointer")
	}
	values := r.URL.Query()
	elem := rv.Elem()
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Type().Field(i)
		name := strings.SplitN(field.Tag.Get("query"), ",", 2)[0]
		if name == "" || field.Type.Kind() != reflect.String {
			continue
		}
		elem.Field(i).SetString(SanitizeString(values.Get(name), 0))
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// ValidateVar checks a single value, such as a path parameter, against tag.
func ValidateVar(field, value, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid "+field).
			WithDetails(map[string]string{field: "is invalid"})
	}
	return nil
}
