package clmm

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/defistate/defistate-dex-go/fixedpoint"
)

// ErrorKind classifies every failure the engine reports. Kinds are errors
// themselves, so errors.Is(err, clmm.ErrSlippage) matches any *Error of
// that kind.
type ErrorKind uint8

const (
	ErrUnknown ErrorKind = iota
	ErrAccountNotRegistered
	ErrTokensStorageNotEmpty
	ErrTokenNotRegistered
	ErrNotEnoughTokens
	ErrNonZeroTokenBalance
	ErrIllegalWithdrawAmount
	ErrDepositSenderMustBeSigner
	ErrUnexpectedRegisterAccount
	ErrDepositAlreadyHandled
	ErrDepositNotHandled
	ErrDepositNotAllowed
	ErrWithdrawInProgress
	ErrDepositWouldOverflow
	ErrWrongActionResult
	ErrSlippage
	ErrAtLeastOneSwap
	ErrInsufficientLiquidity
	ErrSwapAmountTooSmall
	ErrSwapAmountTooLarge
	ErrInvalidParams
	ErrPoolNotRegistered
	ErrTokenDuplicates
	ErrPermissionDenied
	ErrGuardChangeStateDenied
	ErrIllegalFee
	ErrWrongRatio
	ErrLiquidityTooSmall
	ErrLiquidityTooBig
	ErrPositionAlreadyExists
	ErrPositionDoesNotExist
	ErrUserHasPositions
	ErrNotYourPosition
	ErrConvOverflow
	ErrConvSourceNaN
	ErrConvNegativeToUnsigned
	ErrConvPrecisionLoss
	ErrPayableAPISuspended
	ErrInternalTickNotFound
	ErrInternalTickNotDeleted
	ErrInternalDepositMoreThanMax
	ErrInternalTopPoolsNumberMismatch
	ErrInternalLogicError
	ErrPriceTickOutOfBounds

	numErrorKinds
)

var kindInfo = [numErrorKinds]struct{ name, msg string }{
	ErrUnknown:                        {"Unknown", "unknown error"},
	ErrAccountNotRegistered:           {"AccountNotRegistered", "account not registered"},
	ErrTokensStorageNotEmpty:          {"TokensStorageNotEmpty", "account's tokens storage not empty"},
	ErrTokenNotRegistered:             {"TokenNotRegistered", "token not registered"},
	ErrNotEnoughTokens:                {"NotEnoughTokens", "not enough tokens in deposit"},
	ErrNonZeroTokenBalance:            {"NonZeroTokenBalance", "non-zero token balance"},
	ErrIllegalWithdrawAmount:          {"IllegalWithdrawAmount", "illegal withdraw amount"},
	ErrDepositSenderMustBeSigner:      {"DepositSenderMustBeSigner", "deposit sender must be the transaction initiator to run batch actions"},
	ErrUnexpectedRegisterAccount:      {"UnexpectedRegisterAccount", "register account action can only be first in batch"},
	ErrDepositAlreadyHandled:          {"DepositAlreadyHandled", "deposit action already handled, must appear exactly once"},
	ErrDepositNotHandled:              {"DepositNotHandled", "deposit action not handled, must appear exactly once"},
	ErrDepositNotAllowed:              {"DepositNotAllowed", "deposit action not allowed in this batch context"},
	ErrWithdrawInProgress:             {"WithdrawInProgress", "token withdraw is in progress, retry later"},
	ErrDepositWouldOverflow:           {"DepositWouldOverflow", "depositing such amounts would overflow"},
	ErrWrongActionResult:              {"WrongActionResult", "wrong action result type"},
	ErrSlippage:                       {"Slippage", "slippage error"},
	ErrAtLeastOneSwap:                 {"AtLeastOneSwap", "at least one swap"},
	ErrInsufficientLiquidity:          {"InsufficientLiquidity", "insufficient liquidity in the pool to perform the swap"},
	ErrSwapAmountTooSmall:             {"SwapAmountTooSmall", "swap amount too small"},
	ErrSwapAmountTooLarge:             {"SwapAmountTooLarge", "swap amount too large"},
	ErrInvalidParams:                  {"InvalidParams", "invalid params"},
	ErrPoolNotRegistered:              {"PoolNotRegistered", "liquidity pool not registered"},
	ErrTokenDuplicates:                {"TokenDuplicates", "token duplicated"},
	ErrPermissionDenied:               {"PermissionDenied", "permission denied"},
	ErrGuardChangeStateDenied:         {"GuardChangeStateDenied", "guard change state denied"},
	ErrIllegalFee:                     {"IllegalFee", "illegal fee"},
	ErrWrongRatio:                     {"WrongRatio", "wrong token ratio"},
	ErrLiquidityTooSmall:              {"LiquidityTooSmall", "resulting liquidity is too small"},
	ErrLiquidityTooBig:                {"LiquidityTooBig", "resulting liquidity is too big"},
	ErrPositionAlreadyExists:          {"PositionAlreadyExists", "position already exists"},
	ErrPositionDoesNotExist:           {"PositionDoesNotExist", "position does not exist"},
	ErrUserHasPositions:               {"UserHasPositions", "user has opened positions"},
	ErrNotYourPosition:                {"NotYourPosition", "not your position"},
	ErrConvOverflow:                   {"ConvOverflow", "numeric conversion error: source number cannot fit into destination"},
	ErrConvSourceNaN:                  {"ConvSourceNaN", "numeric conversion error: source number is NaN"},
	ErrConvNegativeToUnsigned:         {"ConvNegativeToUnsigned", "numeric conversion error: negative number to unsigned"},
	ErrConvPrecisionLoss:              {"ConvPrecisionLoss", "numeric conversion error: lower digits of source number truncated"},
	ErrPayableAPISuspended:            {"PayableAPISuspended", "payable API suspended"},
	ErrInternalTickNotFound:           {"InternalTickNotFound", "tick not found"},
	ErrInternalTickNotDeleted:         {"InternalTickNotDeleted", "tick not deleted"},
	ErrInternalDepositMoreThanMax:     {"InternalDepositMoreThanMax", "evaluated deposited amount is larger than specified max limit"},
	ErrInternalTopPoolsNumberMismatch: {"InternalTopPoolsNumberMismatch", "number of picked pools doesn't match number of top pools"},
	ErrInternalLogicError:             {"InternalLogicError", "internal logic error"},
	ErrPriceTickOutOfBounds:           {"PriceTickOutOfBounds", "tick value is either too large or too small"},
}

func (k ErrorKind) Error() string {
	if k >= numErrorKinds {
		return kindInfo[ErrUnknown].msg
	}
	return kindInfo[k].msg
}

// Name is the stable identifier of the kind.
func (k ErrorKind) Name() string {
	if k >= numErrorKinds {
		return kindInfo[ErrUnknown].name
	}
	return kindInfo[k].name
}

// IsInternal reports kinds raised by violated engine invariants.
func (k ErrorKind) IsInternal() bool {
	switch k {
	case ErrInternalTickNotFound, ErrInternalTickNotDeleted, ErrInternalDepositMoreThanMax,
		ErrInternalTopPoolsNumberMismatch, ErrInternalLogicError:
		return true
	}
	return false
}

// Error is a failure with the source location that raised it.
type Error struct {
	Kind  ErrorKind
	File  string
	Line  int
	cause error
}

func (e *Error) Error() string {
	loc := fmt.Sprintf("%s:%d", filepath.Base(e.File), e.Line)
	if e.cause != nil && !errors.Is(e.cause, e.Kind) {
		return fmt.Sprintf("%s at %s: %v", e.Kind.Error(), loc, e.cause)
	}
	return fmt.Sprintf("%s at %s", e.Kind.Error(), loc)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// NewError records the kind with the caller's location.
func NewError(kind ErrorKind) *Error {
	return newError(kind, nil, 2)
}

// Wrap converts err into an *Error located at the caller. Existing *Error
// values pass through unchanged; fixedpoint errors map to the Conv kinds.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := KindOf(err)
	if k, ok := err.(ErrorKind); ok {
		return newError(k, nil, 2)
	}
	return newError(kind, err, 2)
}

// WrapAs is Wrap with an explicit kind.
func WrapAs(kind ErrorKind, cause error) *Error {
	return newError(kind, cause, 2)
}

func newError(kind ErrorKind, cause error, skip int) *Error {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		file = "<unknown file>"
	}
	return &Error{Kind: kind, File: file, Line: line, cause: cause}
}

// KindOf classifies any error returned by the engine.
func KindOf(err error) ErrorKind {
	var e *Error
	var k ErrorKind
	switch {
	case err == nil:
		return ErrUnknown
	case errors.As(err, &e):
		return e.Kind
	case errors.As(err, &k):
		return k
	case errors.Is(err, fixedpoint.ErrOverflow):
		return ErrConvOverflow
	case errors.Is(err, fixedpoint.ErrNaN):
		return ErrConvSourceNaN
	case errors.Is(err, fixedpoint.ErrNegativeToUnsigned):
		return ErrConvNegativeToUnsigned
	case errors.Is(err, fixedpoint.ErrPrecisionLoss):
		return ErrConvPrecisionLoss
	}
	return ErrUnknown
}

// Packed error code layout, most significant first: sign bits, kind (8),
// file index (8), line (12).
const (
	lineBits   = 12
	lineMask   = 1<<lineBits - 1
	fileBits   = 8
	fileMask   = 1<<fileBits - 1
	fileOffset = lineBits
	kindBits   = 8
	kindMask   = 1<<kindBits - 1
	kindOffset = fileOffset + fileBits
	totalBits  = kindOffset + kindBits

	CodeMin int32 = ^(1<<totalBits - 1)
	CodeMax int32 = -1
)

// sourceFiles indexes the files that may raise errors. Index 0 in a packed
// code means the file is unknown.
var sourceFiles = []string{
	"protocols/clmm/types.go",
	"protocols/clmm/amount.go",
	"protocols/clmm/calculator/tickmath/tickmath.go",
	"protocols/clmm/calculator/tickmath/pivot.go",
	"protocols/clmm/calculator/liquiditymath/liquiditymath.go",
	"protocols/clmm/pool/pool.go",
	"protocols/clmm/pool/position.go",
	"protocols/clmm/pool/swap.go",
	"protocols/clmm/pool/info.go",
	"protocols/clmm/dex/dex.go",
	"protocols/clmm/dex/account.go",
	"protocols/clmm/dex/position.go",
	"protocols/clmm/dex/swap.go",
	"protocols/clmm/dex/actions.go",
	"protocols/clmm/dex/admin.go",
	"protocols/clmm/dex/routing.go",
	"protocols/clmm/dex/factory.go",
}

func fileIndex(path string) int32 {
	path = filepath.ToSlash(path)
	for i, f := range sourceFiles {
		if path == f || strings.HasSuffix(path, "/"+f) {
			return int32(i + 1)
		}
	}
	return 0
}

// Code packs kind and location into a negative 32-bit integer, for callers
// that can only carry an integer across their boundary.
func (e *Error) Code() int32 {
	kind := int32(e.Kind) & kindMask
	file := fileIndex(e.File) & fileMask
	line := int32(e.Line) & lineMask
	return CodeMin | kind<<kindOffset | file<<fileOffset | line
}

// DescribeCode decodes a value produced by Code.
func DescribeCode(code int32) string {
	if code < CodeMin || code > CodeMax {
		return "<invalid error code>"
	}
	kind := ErrorKind((code >> kindOffset) & kindMask)
	file := int((code >> fileOffset) & fileMask)
	line := (code) & lineMask

	fileName := "<unknown file>"
	if file > 0 && file <= len(sourceFiles) {
		fileName = sourceFiles[file-1]
	}
	return fmt.Sprintf("Error %s at %q:%d", kind.Name(), fileName, line)
}
