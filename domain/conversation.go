package domain

import "context"

// Conversation is the session surface renderers drive.
type Conversation interface {
	ID() string
	State() SessionState
	SetDraft(text string)
	// Submit runs one submit cycle. ok is false when text is blank and
	// nothing happened.
	Submit(ctx context.Context, text string) (exchange Exchange, ok bool)
	SubmitDraft(ctx context.Context) (exchange Exchange, ok bool)
}

// Exchange is the pair of turns one submit cycle appended.
type Exchange struct {
	User   Turn `json:"user"`
	Reply  Turn `json:"reply"`
	Failed bool `json:"failed"`
}
