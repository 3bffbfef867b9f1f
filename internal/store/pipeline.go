package store

import (
	"context"

	"go.uber.org/zap"
)

// step is one fallible stage of a mutation. A failing step runs its recover func
// and the pipeline moves on: local state is never rolled back.
type step struct {
	name    string
	run     func(ctx context.Context) error
	recover func(err error)
}

// runPipeline executes steps strictly in order.
func runPipeline(ctx context.Context, log *zap.SugaredLogger, op, id string, steps ...step) {
	for _, st := range steps {
		if err := st.run(ctx); err != nil {
			log.Warnf("[store][%s][%s][err] id=%s: %v", op, st.name, id, err)
			if st.recover != nil {
				st.recover(err)
			}
		}
	}
}
