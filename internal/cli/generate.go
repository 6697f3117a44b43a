package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/oasrouter/internal/emitter/goemitter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a typed Go routing package from an OpenAPI/Swagger document",
		Long: "Generate a Go package whose route methods only accept handlers matching each operation's contract. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  oasrouter generate --input openapi.yaml --out ./api --package-name api
  oasrouter --config oasrouter.yaml generate --force --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.validate("generate"); err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	addSourceFlags(flags)
	flags.String("out", "", "Output directory (derived from the package name when omitted)")
	flags.String("package-name", "", "Go package name of the generated code (default api)")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite existing output when set")

	return cmd
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("generate: logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	set, _, err := derive(ctx, cfg.SourceConfig, log)
	if err != nil {
		return err
	}

	pkg := cfg.PackageName
	if pkg == "" {
		pkg = "api"
	}
	outDir := cfg.Out
	if outDir == "" {
		outDir = pkg
	}
	// Absolute only for display; the emitter resolves the path itself.
	absOut := outDir
	if ap, err := filepath.Abs(outDir); err == nil {
		absOut = ap
	}

	res, err := goemitter.Emit(ctx, set, goemitter.Options{
		OutDir:      outDir,
		PackageName: pkg,
		Force:       cfg.Force,
		DryRun:      cfg.DryRun,
		Verbose:     cfg.Verbose,
	})
	if err != nil {
		return wrapOutputError(err, absOut)
	}
	if cfg.DryRun {
		paths := make([]string, 0, len(res.Planned))
		for _, p := range res.Planned {
			paths = append(paths, p.RelPath)
		}
		printPlan(os.Stdout, absOut, paths)
		return nil
	}
	log.Info("generated package",
		zap.String("package", res.PackageName),
		zap.String("out", absOut),
		zap.Int("operations", res.Operations),
	)
	return nil
}

func printPlan(w io.Writer, outDir string, relPaths []string) {
	fmt.Fprintf(w, "Planned writes to %s (%d files):\n", outDir, len(relPaths))
	for _, p := range relPaths {
		fmt.Fprintf(w, "- %s\n", p)
	}
}

func wrapOutputError(err error, outDir string) error {
	// Clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, hint := range []string{"permission", "read-only", "mkdir", "rename", "output directory"} {
		if strings.Contains(lower, hint) {
			return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out or use --force when appropriate.", outDir, msg))
		}
	}
	return err
}
