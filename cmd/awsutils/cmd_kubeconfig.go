package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/awsutils/internal/config"
	"github.com/yairfalse/awsutils/internal/eks"
)

var (
	eksCluster string
	eksRegion  string
	eksRoleARN string
	eksOutput  string
)

// kubeconfigCmd represents the kubeconfig command
var kubeconfigCmd = &cobra.Command{
	Use:   "kubeconfig",
	Short: "Write a kubeconfig for an EKS cluster through an assumed role",
	Long: `Assume an IAM role, make sure it has an admin access entry on the
cluster, and write a kubeconfig that authenticates as that role.

The kubeconfig calls "aws eks get-token" with the assumed credentials,
so it stops working when they expire.`,
	Example: `  awsutils kubeconfig --cluster prod --role-arn arn:aws:iam::123456789012:role/admin
  awsutils kubeconfig --cluster prod --role-arn arn:aws:iam::123456789012:role/admin --out ./prod.yaml`,
	RunE: runKubeconfig,
}

func init() {
	rootCmd.AddCommand(kubeconfigCmd)
	addEKSFlags(kubeconfigCmd)
	kubeconfigCmd.Flags().StringVar(&eksOutput, "out", "", "Kubeconfig path (default: a new temp file)")
}

// addEKSFlags registers the cluster flags shared by kubeconfig and pods.
func addEKSFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&eksCluster, "cluster", "", "EKS cluster name")
	cmd.Flags().StringVar(&eksRegion, "cluster-region", "", "Cluster region (default: the AWS region)")
	cmd.Flags().StringVar(&eksRoleARN, "role-arn", "", "IAM role to assume")
}

func applyEKSFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("cluster") {
		cfg.EKS.ClusterName = eksCluster
	}
	if flags.Changed("cluster-region") {
		cfg.EKS.Region = eksRegion
	}
	if flags.Changed("role-arn") {
		cfg.EKS.RoleARN = eksRoleARN
	}
	if flags.Changed("out") {
		cfg.EKS.Kubeconfig = eksOutput
	}
}

func runKubeconfig(cmd *cobra.Command, _ []string) error {
	return runCommand(cmd, "kubeconfig",
		func(cfg *config.Config) error {
			applyEKSFlags(cmd, cfg)
			return cfg.ValidateEKS()
		},
		func(ctx context.Context, a *app) error {
			return writeClusterKubeconfig(ctx, a, cmd.OutOrStdout())
		},
	)
}

// newClusterManager connects to the configured cluster as the configured role.
func newClusterManager(ctx context.Context, cfg *config.Config) (*eks.ClusterManager, error) {
	region := cfg.EKS.Region
	if region == "" {
		region = primaryRegion(cfg)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, region)
	if err != nil {
		return nil, err
	}

	manager, err := eks.NewClusterManager(ctx, awsCfg, eks.Options{
		ClusterName: cfg.EKS.ClusterName,
		Region:      region,
		RoleARN:     cfg.EKS.RoleARN,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to cluster %s: %w", cfg.EKS.ClusterName, err)
	}
	return manager, nil
}

func writeClusterKubeconfig(ctx context.Context, a *app, out io.Writer) error {
	manager, err := newClusterManager(ctx, a.cfg)
	if err != nil {
		return err
	}

	path, err := manager.WriteKubeconfig(ctx, a.cfg.EKS.Kubeconfig)
	if err != nil {
		return err
	}

	log.Info().
		Str("cluster", a.cfg.EKS.ClusterName).
		Str("path", path).
		Msg("kubeconfig written")
	_, err = fmt.Fprintln(out, path)
	return err
}
