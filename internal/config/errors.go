package config

import (
	"fmt"
	"strconv"
)

// FieldError 描述一个非法字段：路径、原因以及（可选的）原始取值。
type FieldError struct {
	Field  string
	Reason string
	Value  string
}

func (e FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (当前值 %s)", e.Field, e.Reason, strconv.Quote(e.Value))
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// newValueError 在错误中附带用户填写的值，便于定位拼写问题。
func newValueError(field, value, reason string) error {
	return FieldError{Field: field, Reason: reason, Value: value}
}

// hubField 拼接 Hub[name].Field 形式的字段路径。
func hubField(name, field string) string {
	if name == "" {
		return fmt.Sprintf("Hub[].%s", field)
	}
	return fmt.Sprintf("Hub[%s].%s", name, field)
}
