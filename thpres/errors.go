package thpres

import "errors"

var (
	ErrTooManyRegions    = errors.New("the maximum number of supported equilibration regions is 255")
	ErrInvalidRegion     = errors.New("invalid equilibration region")
	ErrRestartSize       = errors.New("restart threshold pressure vector has the wrong size")
	ErrRestartAsymmetric = errors.New("restart threshold pressure vector is not symmetric")
	ErrRestartValue      = errors.New("restart threshold pressure vector holds a negative or NaN value")
	ErrUnknownFault      = errors.New("threshold pressure given for unknown fault")
	ErrNotInitialized    = errors.New("threshold pressures are not initialized")
)
