package send

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/clawgate/cmd/clawgate/internal"
	"github.com/tinyland-inc/clawgate/pkg/config"
	"github.com/tinyland-inc/clawgate/pkg/gate"
	anthropicprovider "github.com/tinyland-inc/clawgate/pkg/providers/anthropic"
	openaiprovider "github.com/tinyland-inc/clawgate/pkg/providers/openai"
	"github.com/tinyland-inc/clawgate/pkg/registry"
	"github.com/tinyland-inc/clawgate/pkg/semantic"
)

func NewSendCommand() *cobra.Command {
	var (
		to            string
		msgContext    string
		groupID       string
		label         string
		tags          []string
		correlationID string
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a message through the outbound gate",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return sendCmd(sendOptions{
				recipient:     to,
				body:          strings.Join(args, " "),
				msgContext:    msgContext,
				groupID:       groupID,
				label:         label,
				tags:          tags,
				correlationID: correlationID,
			})
		},
	}

	cmd.Flags().StringVarP(&to, "to", "t", "", "Recipient agent id")
	cmd.Flags().StringVarP(&msgContext, "context", "c", "", "Intent or context for the message")
	cmd.Flags().StringVarP(&groupID, "group", "g", "", "Group conversation id")
	cmd.Flags().StringVar(&label, "label", "", "Preferred connection label")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Capability tags for connection selection")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation id for reply threading")

	return cmd
}

type sendOptions struct {
	recipient     string
	body          string
	msgContext    string
	groupID       string
	label         string
	tags          []string
	correlationID string
}

func sendCmd(opts sendOptions) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.Registry.BaseURL == "" {
		return errors.New("no registry configured; set registry.base_url in config")
	}

	client := registry.NewClient(registry.Config{
		BaseURL:       cfg.Registry.BaseURL,
		Token:         cfg.Registry.Token,
		Timeout:       time.Duration(cfg.Registry.TimeoutSeconds) * time.Second,
		RetryAttempts: cfg.Registry.RetryAttempts,
	})
	cache := registry.NewPolicyCache(client, time.Duration(cfg.Registry.PolicyCacheTTLSeconds)*time.Second)

	evaluator := semantic.NewEvaluator(buildCompleter(cfg), semantic.Config{
		Timeout:     cfg.SemanticTimeout(),
		Temperature: cfg.Semantic.Temperature,
		MaxTokens:   cfg.Semantic.MaxTokens,
	})

	g := gate.NewOutboundGate(gate.OutboundGateConfig{
		AgentID:   cfg.Agent.ID,
		Resolver:  gate.NewResolver(cfg.Policy.Rules, cfg.Policy.Mode, cache),
		Evaluator: evaluator,
		Transport: client,
		Metrics:   gate.NewMetrics(),
	})

	status, err := g.Send(context.Background(), gate.SendRequest{
		Recipient:       opts.recipient,
		Body:            opts.body,
		Context:         opts.msgContext,
		GroupID:         opts.groupID,
		ConnectionLabel: opts.label,
		Tags:            opts.tags,
		CorrelationID:   opts.correlationID,
	})

	var pv *gate.PolicyViolationError
	if errors.As(err, &pv) {
		fmt.Printf("✗ Blocked: %s\n", pv.Error())
		return err
	}
	if err != nil {
		return err
	}

	switch status.Status {
	case "delivered":
		fmt.Printf("✓ Delivered (%s)\n", status.DeliveryID)
	case "pending":
		fmt.Printf("… Accepted, delivery pending (%s)\n", status.DeliveryID)
	default:
		fmt.Printf("✗ %s", status.Status)
		if status.Reason != "" {
			fmt.Printf(": %s", status.Reason)
		}
		fmt.Println()
	}
	return nil
}

func buildCompleter(cfg *config.Config) semantic.Completer {
	switch cfg.Semantic.Provider {
	case "openai":
		return openaiprovider.NewCompleter(cfg.Semantic.APIKey, cfg.Semantic.Model, cfg.Semantic.APIBase)
	default:
		return anthropicprovider.NewCompleter(cfg.Semantic.APIKey, cfg.Semantic.Model, cfg.Semantic.APIBase)
	}
}
