package validator

import (
	"fmt"
	"strings"

	"github.com/sweetpotato0/lexdraft/middleware"
)

// ValidatorFunc validates a prompt
type ValidatorFunc func(string) error

// FilterFunc inspects or rejects a response
type FilterFunc func(string) error

// PromptValidator validates prompts before they reach the oracle
type PromptValidator struct {
	validator ValidatorFunc
}

// NewPromptValidator creates a prompt validation middleware
func NewPromptValidator(validator ValidatorFunc) *PromptValidator {
	return &PromptValidator{validator: validator}
}

// MaxChars rejects blank prompts and prompts longer than limit characters.
// A limit of zero only rejects blank prompts.
func MaxChars(limit int) ValidatorFunc {
	return func(prompt string) error {
		if strings.TrimSpace(prompt) == "" {
			return fmt.Errorf("%w: empty", middleware.ErrInvalidPrompt)
		}
		if limit > 0 && len(prompt) > limit {
			return fmt.Errorf("%w: %d chars exceeds %d", middleware.ErrInvalidPrompt, len(prompt), limit)
		}
		return nil
	}
}

// Name returns the middleware name
func (m *PromptValidator) Name() string {
	return "PromptValidator"
}

// Execute validates the prompt
func (m *PromptValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.validator != nil {
		if err := m.validator(ctx.Prompt); err != nil {
			return err
		}
	}
	return next(ctx)
}

// ResponseFilter checks the oracle response
type ResponseFilter struct {
	filter FilterFunc
}

// NewResponseFilter creates a response filtering middleware
func NewResponseFilter(filter FilterFunc) *ResponseFilter {
	return &ResponseFilter{filter: filter}
}

// NonEmpty rejects blank responses.
func NonEmpty(resp string) error {
	if strings.TrimSpace(resp) == "" {
		return middleware.ErrEmptyResponse
	}
	return nil
}

// Name returns the middleware name
func (m *ResponseFilter) Name() string {
	return "ResponseFilter"
}

// Execute filters the response
func (m *ResponseFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil {
		return err
	}
	if m.filter != nil {
		return m.filter(ctx.Response)
	}
	return nil
}
