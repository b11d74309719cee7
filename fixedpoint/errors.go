package fixedpoint

import "errors"

var (
	ErrNaN                = errors.New("encountered NaN")
	ErrNegativeToUnsigned = errors.New("attempted to convert negative value to unsigned")
	ErrOverflow           = errors.New("numeric overflow")
	ErrPrecisionLoss      = errors.New("precision loss")
	ErrDivisionByZero     = errors.New("division by zero")
)
