// Package ai abstracts the language-model backend the practice authority
// uses to top up its question bank.
package ai

import "context"

type Provider interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
}
