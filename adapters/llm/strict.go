package llm

import (
	"context"
	"fmt"

	"github.com/satriahrh/backbone/domain"
)

// StrictCompleter rejects replies whose role is not a recognized one.
type StrictCompleter struct {
	domain.Completer
}

func (s StrictCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Turn, error) {
	turn, err := s.Completer.Complete(ctx, req)
	if err != nil {
		return domain.Turn{}, err
	}
	if !turn.Role.Valid() {
		return domain.Turn{}, &DecodeError{Reason: fmt.Sprintf("role %q", turn.Role), Err: ErrUnexpectedRole}
	}
	return turn, nil
}
