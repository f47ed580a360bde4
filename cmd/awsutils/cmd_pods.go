package main

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"

	"github.com/yairfalse/awsutils/internal/config"
	"github.com/yairfalse/awsutils/internal/emitter"
	"github.com/yairfalse/awsutils/internal/kube"
)

var (
	podsNamespace  string
	podsKubeconfig string
	podsFormat     string
)

// podsCmd represents the pods command
var podsCmd = &cobra.Command{
	Use:   "pods",
	Short: "List pods in an EKS cluster namespace",
	Long: `List the pods in a namespace, either through an existing kubeconfig
file or by assuming a role on an EKS cluster first.`,
	Example: `  awsutils pods --kubeconfig ~/.kube/config --namespace kube-system
  awsutils pods --cluster prod --role-arn arn:aws:iam::123456789012:role/admin`,
	RunE: runPods,
}

func init() {
	rootCmd.AddCommand(podsCmd)
	addEKSFlags(podsCmd)

	flags := podsCmd.Flags()
	flags.StringVarP(&podsNamespace, "namespace", "n", "", "Namespace to list")
	flags.StringVar(&podsKubeconfig, "kubeconfig", "", "Use this kubeconfig instead of assuming a role")
	flags.StringVarP(&podsFormat, "format", "o", "", "Output format: json, yaml")
}

func runPods(cmd *cobra.Command, _ []string) error {
	return runCommand(cmd, "pods",
		func(cfg *config.Config) error {
			applyEKSFlags(cmd, cfg)
			if cmd.Flags().Changed("namespace") {
				cfg.EKS.Namespace = podsNamespace
			}
			if cmd.Flags().Changed("format") {
				cfg.Output.Format = podsFormat
			}
			if podsKubeconfig != "" {
				return cfg.Validate()
			}
			return cfg.ValidateEKS()
		},
		func(ctx context.Context, a *app) error {
			return listPods(ctx, a, cmd.OutOrStdout())
		},
	)
}

func listPods(ctx context.Context, a *app, out io.Writer) error {
	format, err := emitter.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return err
	}

	client, err := podsClient(ctx, a.cfg)
	if err != nil {
		return err
	}

	pods, err := kube.ListPods(ctx, client, a.cfg.EKS.Namespace)
	if err != nil {
		return err
	}
	log.Info().Str("namespace", a.cfg.EKS.Namespace).Int("pods", len(pods)).Msg("pods listed")

	return emitter.NewWriterEmitter(out, format).Emit(ctx, "pods", pods)
}

func podsClient(ctx context.Context, cfg *config.Config) (kubernetes.Interface, error) {
	if podsKubeconfig != "" {
		return kube.NewClientset(podsKubeconfig)
	}

	manager, err := newClusterManager(ctx, cfg)
	if err != nil {
		return nil, err
	}
	kubeCfg, err := manager.Kubeconfig(ctx)
	if err != nil {
		return nil, err
	}
	return kube.NewClientsetFromConfig(kubeCfg)
}
