package catalog

import "errors"

var (
	ErrItemNotFound = errors.New("catalog item not found")
	ErrPlanNotFound = errors.New("plan not found")
	ErrInvalidPrice = errors.New("invalid price")
)
