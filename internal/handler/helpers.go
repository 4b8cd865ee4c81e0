package handler

import (
	"net/http"
	"reflect"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails —
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		for _, fe := range err.(validator.ValidationErrors) {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewFields(fields))
		return false
	}
	return true
}

// respondError maps service errors onto the HTTP status contract. Typed
// apierror.Error values carry their own status; anything else is an opaque 500.
func respondError(c *gin.Context, err error) {
	if ae, ok := err.(*apierror.Error); ok {
		if ae.Kind == apierror.KindValidation && ae.Fields != nil {
			c.JSON(ae.Status(), apierror.NewFields(ae.Fields))
			return
		}
		c.JSON(ae.Status(), apierror.New(ae.Msg))
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, apierror.New("internal server error"))
}
