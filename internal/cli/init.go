package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const defaultConfigName = "oasrouter.yaml"

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample oasrouter configuration file",
		Long:  "Scaffold a commented oasrouter configuration file that documents available options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			return initRunner(cmd.Context(), &InitConfig{OutputPath: out, Force: force})
		},
	}

	cmd.Flags().String("out", defaultConfigName, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")
	return cmd
}

func runInit(_ context.Context, cfg *InitConfig) error {
	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultConfigName
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force && st.Mode().IsRegular() {
		return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	content := strings.TrimSpace(sampleConfigYAML) + "\n"
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML documents every key the config file accepts.
const sampleConfigYAML = `# oasrouter configuration (YAML or JSON)
# All fields are optional. Command-line flags override config values.

# Path or URL to the OpenAPI 3.x or Swagger 2.0 document.
# input: ./openapi.yaml

# Only derive operations with at least one of these tags.
# includeTags: [public]

# Skip operations with any of these tags.
# excludeTags: [internal]

# Only derive these HTTP methods.
# methods: [get, post]

# Only derive paths matching one of these regular expressions.
# paths: ["^/pets"]

# generate: output directory. Defaults to the package name.
# out: ./api

# generate: Go package name of the generated code.
# packageName: api

# generate: preview planned outputs without writing files.
# dryRun: false

# generate: overwrite a non-empty output directory.
# force: false

# Enable verbose logging.
# verbose: false
`
