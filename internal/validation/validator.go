package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/cascade"
)

// datePattern accepts zero month/day components; normalisation happens after validation.
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// New returns a configured validator with the custom tags used by requests and csv rows.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report json names so messages match what the client sent
	v.RegisterTagNameFunc(jsonTagName)

	mustRegister(v, "catalogdate", func(fl validatorv10.FieldLevel) bool {
		return datePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "cascadefield", func(fl validatorv10.FieldLevel) bool {
		_, err := cascade.ParseOptions([]string{fl.Field().String()})
		return err == nil
	})

	v.RegisterStructValidation(orderSyncStructValidation, OrderSyncRequest{})

	return v
}

func mustRegister(v *validatorv10.Validate, tag string, fn validatorv10.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}

// orderSyncStructValidation rejects headers whose payment precedes the order.
func orderSyncStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(OrderSyncRequest)

	h := req.Header
	if h.OrderDate != "" && h.PaymentDate != "" && datePattern.MatchString(h.OrderDate) &&
		datePattern.MatchString(h.PaymentDate) && h.PaymentDate < h.OrderDate {
		sl.ReportError(h.PaymentDate, "paymentDate", "PaymentDate", "after_order_date", "")
	}
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

// Problems converts validator errors into apperror problems. line is attached to each problem when > 0.
func Problems(err error, line int) []apperror.Problem {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return []apperror.Problem{{Line: line, Message: err.Error()}}
	}

	out := make([]apperror.Problem, 0, len(ve))
	for _, fe := range ve {
		out = append(out, apperror.Problem{
			Line:    line,
			Field:   fieldPath(fe),
			Message: fmt.Sprintf("%s failed on %q", fieldPath(fe), fe.Tag()),
		})
	}
	return out
}

// fieldPath drops the root struct name from the namespace: "OrderSyncRequest.header.shop" -> "header.shop".
func fieldPath(fe validatorv10.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
