package cli

import (
	"context"

	"github.com/mark3labs/oasrouter/contract"
	"github.com/mark3labs/oasrouter/router"
	"github.com/mark3labs/oasrouter/spec"
	"go.uber.org/zap"
)

// derive runs load, synthesis and router composition for src. Every stage
// failure is reported with all of its errors.
func derive(ctx context.Context, src SourceConfig, log *zap.Logger) (*contract.Set, *router.Interface, error) {
	doc, err := spec.Load(ctx, src.Input, spec.WithLogger(log))
	if err != nil {
		return nil, nil, specError(err)
	}

	set, err := contract.Synthesize(ctx, doc,
		contract.WithIncludeTags(src.IncludeTags...),
		contract.WithExcludeTags(src.ExcludeTags...),
		contract.WithMethods(src.Methods...),
		contract.WithPathPatterns(src.Paths...),
		contract.WithLogger(log),
	)
	if err != nil {
		return nil, nil, stageError("contracts", err)
	}

	rt, err := router.Build(set, router.WithLogger(log))
	if err != nil {
		return nil, nil, stageError("routes", err)
	}
	log.Info("derived routing interface",
		zap.String("input", src.Input),
		zap.Int("operations", len(set.Operations)),
		zap.Int("methods", len(rt.Methods())),
	)
	return set, rt, nil
}
