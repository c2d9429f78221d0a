package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var messages = map[string]string{
	"type":        "Please add a transaction type",
	"description": "Please add a description",
	"amount":      "Please add an amount",
	"category":    "Please add a category",
}

var fieldOrder = map[string]int{
	"type":        0,
	"description": 1,
	"amount":      2,
	"category":    3,
	"date":        4,
}

// ValidationError carries one message per invalid field.
type ValidationError struct {
	Errors map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		return fieldOrder[fields[i]] < fieldOrder[fields[j]]
	})

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Errors[f]))
	}
	return "Transaction validation failed: " + strings.Join(parts, ", ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if m, ok := messages[fe.Field()]; ok {
			return m
		}
		return fmt.Sprintf("Path `%s` is required.", fe.Field())
	case "oneof":
		return fmt.Sprintf("`%v` is not a valid enum value for path `%s`.", fe.Value(), fe.Field())
	}
	return fmt.Sprintf("Validator failed for path `%s` with value `%v`", fe.Field(), fe.Value())
}
