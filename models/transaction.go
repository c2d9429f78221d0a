package models

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

type TransactionType string

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

// ErrNotFound is returned by every store when no transaction has the requested id.
var ErrNotFound = errors.New("transaction not found")

type Transaction struct {
	ID          string          `json:"id" gorm:"primaryKey"`
	Type        TransactionType `json:"type" gorm:"index" validate:"required,oneof=expense income"`
	Description string          `json:"description" validate:"required"`
	Amount      float64         `json:"amount"`
	Category    string          `json:"category" gorm:"index" validate:"required"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"createdAt" gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time       `json:"updatedAt" gorm:"autoUpdateTime:false"`
}

// TransactionInput is the request body accepted on create and update. Amount
// and Date are left loosely typed so numeric strings and epoch milliseconds
// can be cast the same way the stored documents were historically written.
type TransactionInput struct {
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Amount      interface{} `json:"amount"`
	Category    string      `json:"category"`
	Date        interface{} `json:"date"`
}

// maxEpochMillis bounds epoch dates to the range a JavaScript Date can hold.
const maxEpochMillis = 8.64e15

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize validates the input and builds a new transaction stamped with now.
// A missing date defaults to now.
func (in *TransactionInput) Normalize(now time.Time) (*Transaction, error) {
	now = now.UTC().Truncate(time.Millisecond)
	t, err := in.build(now)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return t, nil
}

// Replace validates the input as a full replacement of existing. The id and
// creation time are kept; a missing date keeps the existing date.
func (in *TransactionInput) Replace(existing *Transaction, now time.Time) (*Transaction, error) {
	now = now.UTC().Truncate(time.Millisecond)
	t, err := in.build(existing.Date)
	if err != nil {
		return nil, err
	}
	t.ID = existing.ID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = now
	return t, nil
}

func (in *TransactionInput) build(defaultDate time.Time) (*Transaction, error) {
	verr := &ValidationError{Errors: map[string]string{}}

	t := &Transaction{
		Type:        TransactionType(in.Type),
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Date:        defaultDate,
	}

	amount, ok, err := castAmount(in.Amount)
	switch {
	case err != nil:
		verr.Errors["amount"] = err.Error()
	case !ok:
		verr.Errors["amount"] = messages["amount"]
	default:
		t.Amount = amount
	}

	if in.Date != nil {
		d, err := castDate(in.Date)
		if err != nil {
			verr.Errors["date"] = err.Error()
		} else {
			t.Date = d
		}
	}

	if err := validate.Struct(t); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		for _, fe := range fieldErrs {
			verr.Errors[fe.Field()] = fieldMessage(fe)
		}
	}

	if len(verr.Errors) > 0 {
		return nil, verr
	}
	return t, nil
}

func castAmount(v interface{}) (float64, bool, error) {
	switch a := v.(type) {
	case nil:
		return 0, false, nil
	case string:
		if strings.TrimSpace(a) == "" {
			return 0, false, nil
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("Cast to Number failed for value %q at path \"amount\"", fmt.Sprint(v))
	}
	return f, true, nil
}

func castDate(v interface{}) (time.Time, error) {
	failed := fmt.Errorf("Cast to date failed for value %q at path \"date\"", fmt.Sprint(v))
	var t time.Time
	switch d := v.(type) {
	case float64:
		if math.IsNaN(d) || math.Abs(d) > maxEpochMillis {
			return time.Time{}, failed
		}
		t = time.UnixMilli(int64(d)).UTC()
	case string:
		parsed, ok := parseDate(d)
		if !ok {
			return time.Time{}, failed
		}
		t = parsed
	default:
		return time.Time{}, failed
	}
	// encoding/json only renders four-digit years.
	if t.Year() < 0 || t.Year() > 9999 {
		return time.Time{}, failed
	}
	return t, nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC().Truncate(time.Millisecond), true
		}
	}
	return time.Time{}, false
}
