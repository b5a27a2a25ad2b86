package queue

import (
	"fmt"
	"log/slog"
	"strings"

	"spacedub/internal/logging"
	"spacedub/internal/mention"
)

// SeenSet is the durable record of admitted ids.
type SeenSet interface {
	Seen(id string) bool
	Mark(id string) (bool, error)
}

// Intake admits polled candidates into a Queue exactly once per id.
type Intake struct {
	seen   SeenSet
	queue  *Queue
	logger *slog.Logger
}

// NewIntake couples seen to q.
func NewIntake(seen SeenSet, q *Queue, logger *slog.Logger) *Intake {
	return &Intake{seen: seen, queue: q, logger: logging.NewComponentLogger(logger, "intake")}
}

// Admit walks units in order, skipping ids already seen. For each new id the
// mark is persisted first and the unit appended second. A persist failure
// stops admission and is returned; the failed unit is not enqueued.
func (in *Intake) Admit(units []mention.WorkUnit) ([]mention.WorkUnit, error) {
	var admitted []mention.WorkUnit
	for _, unit := range units {
		if strings.TrimSpace(unit.ID) == "" || in.seen.Seen(unit.ID) {
			continue
		}
		added, err := in.seen.Mark(unit.ID)
		if err != nil {
			return admitted, fmt.Errorf("admit %s: %w", unit.ID, err)
		}
		if !added {
			continue
		}
		in.queue.Push(unit)
		admitted = append(admitted, unit)
		in.logger.Info("mention admitted",
			logging.String(logging.FieldEventType, "mention_admitted"),
			logging.String(logging.FieldJobID, unit.ID),
			logging.String("origin", unit.Origin),
			logging.Int("queue_depth", in.queue.Len()))
	}
	return admitted, nil
}
