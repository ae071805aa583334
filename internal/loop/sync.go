package loop

import (
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/model"
)

// SyncMetadata overwrites artifact metadata with the refiner's updates,
// logging old to new for auditability. Fields absent from updates are
// untouched. This runs in the same cycle step as Merge, never
// separately: prose updated without its metadata is how narrative and
// metadata diverge.
func SyncMetadata(a *model.Artifact, updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	if a.Metadata == nil {
		a.Metadata = make(map[string]any, len(updates))
	}
	for field, newVal := range updates {
		old, existed := a.Metadata[field]
		a.Metadata[field] = newVal
		if existed {
			zap.L().Info("sync: metadata field overwritten",
				zap.String("ticker", a.Ticker),
				zap.String("field", field),
				zap.Any("old", old),
				zap.Any("new", newVal),
			)
		} else {
			zap.L().Info("sync: metadata field added",
				zap.String("ticker", a.Ticker),
				zap.String("field", field),
				zap.Any("value", newVal),
			)
		}
	}
}
