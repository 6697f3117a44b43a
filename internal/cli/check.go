package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/mark3labs/oasrouter/contract"
	"github.com/mark3labs/oasrouter/router"
	"github.com/mark3labs/oasrouter/shape"
	"github.com/spf13/cobra"
)

// CheckConfig captures the options for the check command.
type CheckConfig struct {
	SourceConfig
	Dump   bool
	Stdout io.Writer
}

var checkRunner = runCheck

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Derive and print the contracts of an OpenAPI/Swagger document",
		Long: "Load a document, derive one contract per operation, and compose the per-method routing members. " +
			"Every definition, synthesis, or composition error is reported.",
		Example: strings.TrimSpace(`  oasrouter check --input openapi.yaml
  oasrouter check --input https://example.com/openapi.json --methods get --dump`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.validate("check"); err != nil {
				return err
			}
			dump, err := cmd.Flags().GetBool("dump")
			if err != nil {
				return err
			}
			return checkRunner(cmd.Context(), &CheckConfig{
				SourceConfig: cfg.SourceConfig,
				Dump:         dump,
				Stdout:       cmd.OutOrStdout(),
			})
		},
	}

	addSourceFlags(cmd.Flags())
	cmd.Flags().Bool("dump", false, "Dump every derived contract structurally")
	return cmd
}

func runCheck(ctx context.Context, cfg *CheckConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}
	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("check: logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	set, rt, err := derive(ctx, cfg.SourceConfig, log)
	if err != nil {
		return err
	}
	if err := printMembers(out, rt); err != nil {
		return err
	}
	if cfg.Dump {
		dumpContracts(out, set)
	}
	return nil
}

// printMembers writes one block per method member listing its paths with the
// request body and selected response of each.
func printMembers(w io.Writer, rt *router.Interface) error {
	set := rt.Contracts()
	fmt.Fprintf(w, "operations: %d\n", len(set.Operations))
	if ids := set.Registry.Identifiers(); len(ids) > 0 {
		fmt.Fprintf(w, "identifiers: %s\n", strings.Join(ids, ", "))
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, m := range rt.Methods() {
		mem, err := rt.Member(m)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\n", m.Upper())
		for _, p := range mem.Paths() {
			op, _ := mem.Contract(p)
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", p, describeBody(op), describeResponse(op))
		}
	}
	return tw.Flush()
}

func describeBody(op *contract.Operation) string {
	if op.RequestBody == nil {
		return "-"
	}
	return "body " + describeShape(op.RequestBody)
}

func describeResponse(op *contract.Operation) string {
	switch {
	case op.ResponseStatus == "":
		return "no success response"
	case op.ResponseBody == nil:
		return op.ResponseStatus
	default:
		return op.ResponseStatus + " " + describeShape(op.ResponseBody)
	}
}

// describeShape names a top-level definition instead of expanding it.
func describeShape(s *shape.Shape) string {
	if s.ID != "" {
		return shape.Name(s.ID)
	}
	return s.String()
}

func dumpContracts(w io.Writer, set *contract.Set) {
	cfg := spew.ConfigState{
		Indent:                  "  ",
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		DisableMethods:          true,
		SortKeys:                true,
	}
	for _, op := range set.Operations {
		fmt.Fprintf(w, "\n# %s\n", op)
		cfg.Fdump(w, op)
	}
}
