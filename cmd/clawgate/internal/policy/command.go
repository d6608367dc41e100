package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/clawgate/cmd/clawgate/internal"
	policypkg "github.com/tinyland-inc/clawgate/pkg/policy"
	"github.com/tinyland-inc/clawgate/pkg/registry"
)

func NewPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and test message policies",
	}

	cmd.AddCommand(newCheckCommand(), newShowCommand())
	return cmd
}

func newCheckCommand() *cobra.Command {
	var (
		direction  string
		msgContext string
	)

	cmd := &cobra.Command{
		Use:   "check [message]",
		Short: "Run a message through the heuristic checks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := policypkg.Direction(direction)
			if dir != policypkg.DirectionInbound && dir != policypkg.DirectionOutbound {
				return fmt.Errorf("direction %q is not inbound or outbound", direction)
			}

			rules, err := effectiveRules(dir)
			if err != nil {
				return err
			}

			d := policypkg.Evaluate(strings.Join(args, " "), msgContext, rules, dir)
			if d.Allowed {
				fmt.Println("✓ allowed")
				return nil
			}
			fmt.Printf("✗ blocked: %s\n", d.Reason)
			return nil
		},
	}

	cmd.Flags().StringVarP(&direction, "direction", "d", "outbound", "Direction to evaluate (inbound or outbound)")
	cmd.Flags().StringVarP(&msgContext, "context", "c", "", "Intent or context for the message")
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective heuristic rules per direction",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, dir := range []policypkg.Direction{policypkg.DirectionInbound, policypkg.DirectionOutbound} {
				rules, err := effectiveRules(dir)
				if err != nil {
					return err
				}
				fmt.Printf("%s:\n", dir)
				printRules(rules)
			}
			return nil
		},
	}
}

// effectiveRules resolves local config with registry policies, matching what
// the gateway enforces.
func effectiveRules(dir policypkg.Direction) (policypkg.Rules, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return policypkg.Rules{}, fmt.Errorf("error loading config: %w", err)
	}

	var registryRules []policypkg.Rules
	if cfg.Registry.BaseURL != "" && cfg.Policy.Mode != policypkg.ModeLocal {
		client := registry.NewClient(registry.Config{
			BaseURL:       cfg.Registry.BaseURL,
			Token:         cfg.Registry.Token,
			Timeout:       time.Duration(cfg.Registry.TimeoutSeconds) * time.Second,
			RetryAttempts: cfg.Registry.RetryAttempts,
		})
		fetched, err := client.FetchPolicies(context.Background(), dir)
		if err != nil {
			fmt.Printf("⚠ Registry unreachable, using local rules only: %v\n", err)
		} else {
			registryRules, _ = registry.Split(fetched)
		}
	}

	return policypkg.Resolve(cfg.Policy.Rules, registryRules, cfg.Policy.Mode), nil
}

func printRules(r policypkg.Rules) {
	if r.IsZero() {
		fmt.Println("  (no constraints)")
		return
	}
	if r.MaxMessageLength != nil {
		fmt.Printf("  max length:      %d\n", *r.MaxMessageLength)
	}
	if r.MinMessageLength != nil {
		fmt.Printf("  min length:      %d\n", *r.MinMessageLength)
	}
	if len(r.BlockedKeywords) > 0 {
		fmt.Printf("  keywords:        %d blocked\n", len(r.BlockedKeywords))
	}
	if len(r.BlockedPatterns) > 0 {
		fmt.Printf("  patterns:        %d blocked\n", len(r.BlockedPatterns))
	}
	if r.RequireContext {
		fmt.Println("  require_context: true")
	}
}
