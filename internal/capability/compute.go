package capability

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/formula"
)

// formulaCompute evaluates formulas through the formula registry.
type formulaCompute struct{}

// NewFormulaCompute returns the standard Compute backed by the built-in
// formula registry.
func NewFormulaCompute() Compute {
	return &formulaCompute{}
}

func (formulaCompute) Compute(_ context.Context, formulaID string, inputs map[string]float64) (*formula.Result, error) {
	res, err := formula.Evaluate(formulaID, inputs)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("capability: formula evaluated",
		zap.String("formula", formulaID),
		zap.Float64("value", res.Value),
	)
	return res, nil
}
