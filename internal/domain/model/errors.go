package model

import (
	"errors"
	"strings"
)

// エラー種別。呼び出し側は errors.Is で判定する
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrParse             = errors.New("parse error")
	ErrUnknownProjection = errors.New("unknown projection")
	ErrTransformFailed   = errors.New("coordinate transformation failed")
	ErrMissingCapability = errors.New("missing capability")
	ErrEmptyInput        = errors.New("empty input")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
)

// GeoError 取り込み・変換エラーの詳細（外接矩形、検出CRSなど）を保持する
type GeoError struct {
	Kind     error
	Message  string
	Envelope *BoundingBox
	CRS      string
	Err      error
}

func (e *GeoError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.CRS != "" {
		b.WriteString(" (CRS: ")
		b.WriteString(e.CRS)
		b.WriteString(")")
	}
	if e.Envelope != nil {
		b.WriteString(". Bounds: ")
		b.WriteString(e.Envelope.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap errors.Is(err, ErrXxx) と元エラーの両方を辿れるようにする
func (e *GeoError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewParseError ParseError を作成
func NewParseError(message string, err error) *GeoError {
	return &GeoError{Kind: ErrParse, Message: message, Err: err}
}

// NewUnsupportedFormatError UnsupportedFormat を作成
func NewUnsupportedFormatError(message string) *GeoError {
	return &GeoError{Kind: ErrUnsupportedFormat, Message: message}
}

// IsClientError 利用者の入力に起因するエラーかどうか
func IsClientError(err error) bool {
	for _, kind := range []error{
		ErrUnsupportedFormat, ErrParse, ErrUnknownProjection, ErrTransformFailed,
		ErrMissingCapability, ErrEmptyInput, ErrValidation,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// NewNotFoundError NotFound を作成
func NewNotFoundError(message string) *GeoError {
	return &GeoError{Kind: ErrNotFound, Message: message}
}

// NewValidationError リクエスト値の不正
func NewValidationError(message string) *GeoError {
	return &GeoError{Kind: ErrValidation, Message: message}
}
