package commands

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/accentid/cmd/accentid/internal/config"
	"github.com/haivivi/accentid/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage contexts and their settings.

A context is a named directory holding an accentid.yaml settings file.
Keys are dotted paths into the settings, for example model.backend or
server.addr. Missing settings take their defaults.

Examples:
  accentid config list-contexts
  accentid config add-context prod
  accentid config use-context prod
  accentid config current-context
  accentid config set prod model.backend remote
  accentid config set prod cache.store s3://models/accentid
  accentid config get prod model.backend
  accentid config view`,
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"ls"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names, err := cfg.ListContexts()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(out, "No contexts configured.")
			fmt.Fprintln(out, "Create one with: accentid config add-context <name>")
			return nil
		}

		slices.Sort(names)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSERVICES")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			services, _ := config.ListServices(cfg.ContextDir(name))
			fmt.Fprintf(w, "%s\t%s\t%s\n", current, name, strings.Join(services, ", "))
		}
		return w.Flush()
	},
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create a new context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		name := args[0]
		if err := cfg.AddContext(name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Context %q created.\n", name)
		fmt.Fprintf(cmd.OutOrStdout(), "Configure it with: accentid config set %s <key> <value>\n", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context and its settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Context %q deleted.\n", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q.\n", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Display the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No current context set.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

// loadSettingsMap reads a context's settings file as a generic map.
func loadSettingsMap(cfg *config.Config, ctxName string) (map[string]any, error) {
	if err := config.ValidateContextName(ctxName); err != nil {
		return nil, err
	}
	dir := cfg.ContextDir(ctxName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("context %q not found", ctxName)
	}
	m, err := config.LoadService[map[string]any](dir, config.Service)
	if errors.Is(err, config.ErrServiceNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	if *m == nil {
		return map[string]any{}, nil
	}
	return *m, nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <context> <key> <value>",
	Short: "Set a setting",
	Long: `Set a dotted key in a context's settings file. The result must form
valid settings, so typos in enumerated values are caught immediately.

Examples:
  accentid config set dev server.addr 127.0.0.1:9000
  accentid config set dev model.backend remote
  accentid config set dev model.threads 4
  accentid config set dev labels.us "United States"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctxName, key, value := args[0], args[1], args[2]
		m, err := loadSettingsMap(cfg, ctxName)
		if err != nil {
			return err
		}
		if err := config.SetValue(m, key, value); err != nil {
			return err
		}

		// Save, then load back to validate; restore the old file on failure.
		dir := cfg.ContextDir(ctxName)
		path := cfg.ServicePath(ctxName, config.Service)
		backup, readErr := os.ReadFile(path)
		if err := config.SaveService(dir, config.Service, &m); err != nil {
			return err
		}
		if _, err := config.LoadSettings(cfg, ctxName); err != nil {
			if readErr == nil {
				_ = os.WriteFile(path, backup, 0600)
			} else {
				_ = os.Remove(path)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s (context: %s)\n", key, value, ctxName)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <context> <key>",
	Short: "Get a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		m, err := loadSettingsMap(cfg, args[0])
		if err != nil {
			return err
		}
		v, ok := config.GetValue(m, args[1])
		if !ok {
			return fmt.Errorf("key %q not set in context %q", args[1], args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configViewOutput string

var configViewCmd = &cobra.Command{
	Use:   "view [context]",
	Short: "Show the effective settings (defaults merged with the file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		name := contextName
		if len(args) > 0 {
			name = args[0]
		}
		s, err := config.LoadSettings(cfg, name)
		if err != nil {
			return err
		}
		if s.Model.Token != "" {
			s.Model.Token = maskToken(s.Model.Token)
		}
		format, err := cli.ParseOutputFormat(configViewOutput)
		if err != nil {
			return err
		}
		return cli.Output(s, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit <context>",
	Short: "Open a context's settings in the default editor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctxName := args[0]
		if err := config.ValidateContextName(ctxName); err != nil {
			return err
		}
		if _, err := os.Stat(cfg.ContextDir(ctxName)); os.IsNotExist(err) {
			return fmt.Errorf("context %q not found", ctxName)
		}

		path := cfg.ServicePath(ctxName, config.Service)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte("# accentid settings; see 'accentid config view'\n"), 0600); err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		c := exec.Command(editor, path)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return err
		}
		_, err = config.LoadSettings(cfg, ctxName)
		return err
	},
}

// maskToken masks a secret for display.
func maskToken(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func init() {
	configViewCmd.Flags().StringVarP(&configViewOutput, "output", "o", "yaml", "output format: yaml, json")

	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configCurrentContextCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configEditCmd)

	rootCmd.AddCommand(configCmd)
}
