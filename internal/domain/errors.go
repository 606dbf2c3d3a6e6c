package domain

import "errors"

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrAssetExists   = errors.New("asset already registered")
	ErrInvalidAsset  = errors.New("invalid asset")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrInvalidPrice  = errors.New("invalid price")
	ErrOrderNotFound = errors.New("order not found")
)
