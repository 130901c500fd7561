package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/phpconsistent/internal/config"
)

const (
	sentinelStart = "<!-- phpconsistent:start -->"
	sentinelEnd   = "<!-- phpconsistent:end -->"
)

// newInitCmd implements `phpconsistent init`, which writes a commented
// default configuration and, with --agent-doc, a usage section in an agent
// instructions file such as CLAUDE.md.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		dryRun   bool
		force    bool
		agentDoc string
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default " + config.DefaultPath,
		Long: `Write a commented default configuration to path (default ` + config.DefaultPath + `).
An existing file is left alone unless --force is given.

With --agent-doc FILE, also write a phpconsistent usage section to FILE. The
section is wrapped in sentinel comments so it can be updated in place on
subsequent runs without touching surrounding content.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) > 0 {
				path = args[0]
			}

			if dryRun {
				_, _ = fmt.Fprint(stdout, config.Template)
			} else if err := writeConfig(path, force); err != nil {
				return err
			} else {
				_, _ = fmt.Fprintf(stderr, "wrote %s\n", path)
			}

			if agentDoc == "" {
				return nil
			}
			existing, _ := os.ReadFile(agentDoc)
			updated := applySection(string(existing), generateSection())
			if dryRun {
				_, _ = fmt.Fprint(stdout, updated)
				return nil
			}
			if err := os.WriteFile(agentDoc, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", agentDoc, err)
			}
			_, _ = fmt.Fprintf(stderr, "wrote phpconsistent section to %s\n", agentDoc)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying files")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration")
	cmd.Flags().StringVar(&agentDoc, "agent-doc", "", "also write a usage section to this file (e.g. CLAUDE.md)")
	return cmd
}

func writeConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// generateSection returns the full sentinel-wrapped phpconsistent documentation block.
func generateSection() string {
	body := `## phpconsistent - Docblock Consistency

Run ` + "`phpconsistent check`" + ` on an Xdebug trace after exercising PHP code to
find docblocks that disagree with the values actually passed and returned.

**Availability:** Check with ` + "`phpconsistent --version`" + ` first; skip gracefully if
not found.

**Run it:**
` + "```" + `bash
phpconsistent check /tmp/trace.1234                # analyze /tmp/trace.1234.xt
phpconsistent check -s src -n 10 /tmp/*.xt         # several traces, top 10 targets
phpconsistent check --target 'App\Cart' trace.xt   # only targets matching App\Cart
phpconsistent signatures src                       # documented signatures as parsed
` + "```" + `

Traces must be computerized traces with parameters and return values:
` + "`xdebug.trace_format=1`" + `, ` + "`xdebug.collect_params=3`" + ` (Xdebug 2) and
` + "`xdebug.collect_return=1`" + `.

**How to use the output:**

1. **Fix the docblock, not the call, unless the call is clearly wrong.** Each
   ` + "`failures`" + ` row names the kind, the call site and the target.

2. **Start with ` + "`hotspots`" + `.** Targets with many failures usually have one
   outdated ` + "`@param`" + ` or ` + "`@return`" + ` tag.

3. **Use ` + "`@phpconsistent-ignore`" + `** on a docblock only when the mismatch is
   intended.`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
