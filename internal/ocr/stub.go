package ocr

import "context"

// StaticEngine returns canned tokens from a deterministic callback. It backs
// tests and dry runs where recognition output must be reproducible.
type StaticEngine struct {
	name string
	fn   func(Input) ([]Token, error)
}

// NewStaticEngine creates an engine that answers every Recognize call by
// invoking fn.
func NewStaticEngine(name string, fn func(Input) ([]Token, error)) *StaticEngine {
	return &StaticEngine{name: name, fn: fn}
}

func (s *StaticEngine) Name() string { return s.name }

func (s *StaticEngine) Recognize(ctx context.Context, input Input) ([]Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fn(input)
}
