package feeders

import "errors"

var (
	ErrTargetNotStructPointer = errors.New("target must be a non-nil pointer to a struct")
	ErrFieldCannotBeSet       = errors.New("field cannot be set")
	ErrFieldConversion        = errors.New("cannot convert value to field type")
)
