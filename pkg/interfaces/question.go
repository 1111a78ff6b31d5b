package interfaces

import (
	"context"

	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// QuestionSource supplies candidate questions for a session. The scheduler
// treats it as a pure read dependency.
//
// PoolFor applies the tiered scoping itself: questions tagged to the session
// first, then the session owner's untagged questions, then the global
// untagged pool. The first non-empty tier wins.
type QuestionSource interface {
	PoolFor(ctx context.Context, sessionKey string) ([]*types.Question, error)
}
