package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid はスキーマに合わないメッセージ。呼び出し側は破棄してログに残すだけ
var ErrInvalid = errors.New("invalid message")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidations(v); err != nil {
		panic(fmt.Sprintf("register validations: %v", err))
	}
	return v
}

func registerValidations(v *validator.Validate) error {
	// 空白だけの文字列は受け付けない (全角スペースも空白扱い)
	return v.RegisterValidation("printable", func(fl validator.FieldLevel) bool {
		return strings.TrimFunc(fl.Field().String(), unicode.IsSpace) != ""
	})
}

// Validate checks v against its validate tags.
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// DecodeInbound parses one client frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := Validate(&msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// Decode unmarshals a frame payload into v and validates it.
// A missing payload decodes as an empty object.
func Decode(data json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Validate(v)
}
