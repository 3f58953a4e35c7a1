package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/leasehold/internal/adapters/cli"
	"github.com/example/leasehold/internal/ports/primary"
	"github.com/example/leasehold/internal/wire"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect escalation policies",
}

var policyResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show the tiers that would govern a ticket",
	Long: `Resolve the escalation policy for a property the same way a run does:
property override, then plan policy, then the global policy, then the built-in default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		property, _ := cmd.Flags().GetString("property")
		plan, _ := cmd.Flags().GetString("plan")
		org, _ := cmd.Flags().GetString("org")
		asJSON, _ := cmd.Flags().GetBool("json")

		if property == "" {
			return fmt.Errorf("--property is required")
		}
		if plan != "" && org != "" {
			return fmt.Errorf("--plan and --org are mutually exclusive")
		}

		svc, err := wire.EscalationService()
		if err != nil {
			return err
		}
		return cliadapter.NewEscalationAdapter(svc, os.Stdout).ResolvePolicy(NewContext(), primary.PolicyQuery{
			PropertyID: property,
			PlanID:     plan,
			OrgID:      org,
		}, asJSON)
	},
}

func init() {
	policyResolveCmd.Flags().StringP("property", "p", "", "Property ID (required)")
	policyResolveCmd.Flags().String("plan", "", "Plan ID")
	policyResolveCmd.Flags().StringP("org", "o", "", "Organization ID; its plan is looked up")
	policyResolveCmd.Flags().Bool("json", false, "Print the policy as JSON")

	policyCmd.AddCommand(policyResolveCmd)
}

// PolicyCmd returns the policy command
func PolicyCmd() *cobra.Command {
	return policyCmd
}
