package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-cache-policy/policy"
)

func (a *App) newPoliciesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Work with policy files",
	}
	cmd.AddCommand(a.newPoliciesValidateCmd())
	return cmd
}

func (a *App) newPoliciesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a policy file and list its descriptors",
		Long: `Load a YAML policy file, validate every policy in it and list the
resulting descriptors. Nothing is registered if any policy is invalid.

Examples:
  cachectl policies validate policies.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptors, err := policy.NewRegistry().LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			fmt.Fprintf(a.stdout, "✓ %d policies are valid\n\n", len(descriptors))

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tACTION\tMODE\tNAMESPACE\tKEY\tTTL")
			for _, d := range descriptors {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					d.Name(), d.Action(), d.Mode(), d.Namespace(), keySource(d), d.Expiration())
			}
			return w.Flush()
		},
	}
}

func keySource(d *policy.Descriptor) string {
	switch {
	case d.Mode() == policy.ModeAssign:
		return "assigned:" + d.AssignedKey()
	case d.KeyFromResult():
		return "result"
	default:
		return fmt.Sprintf("arg[%d]", d.KeyIndex())
	}
}
