package eks

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog/log"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

const (
	userName        = "aws"
	execAPIVersion  = "client.authentication.k8s.io/v1beta1"
	tempFilePattern = "kubeconfig-*.yaml"
)

// Kubeconfig refreshes the assumed credentials, makes sure the role has
// cluster access and returns a kubeconfig that authenticates with
// `aws eks get-token` using those credentials.
func (m *ClusterManager) Kubeconfig(ctx context.Context) (*clientcmdapi.Config, error) {
	creds, err := m.assumeRole(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := m.EnsureAccessEntry(ctx); err != nil {
		return nil, err
	}

	ca, err := decodeCA(aws.ToString(m.cluster.CertificateAuthority.Data))
	if err != nil {
		return nil, err
	}

	return buildKubeconfig(m.opts, aws.ToString(m.cluster.Endpoint), ca, creds), nil
}

func buildKubeconfig(opts Options, endpoint string, ca []byte, creds aws.Credentials) *clientcmdapi.Config {
	name := opts.ClusterName

	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[name] = &clientcmdapi.Cluster{
		Server:                   endpoint,
		CertificateAuthorityData: ca,
	}
	cfg.Contexts[name] = &clientcmdapi.Context{
		Cluster:  name,
		AuthInfo: userName,
	}
	cfg.AuthInfos[userName] = &clientcmdapi.AuthInfo{
		Exec: &clientcmdapi.ExecConfig{
			APIVersion: execAPIVersion,
			Command:    "aws",
			Args:       []string{"--region", opts.Region, "eks", "get-token", "--cluster-name", name},
			Env: []clientcmdapi.ExecEnvVar{
				{Name: "AWS_ACCESS_KEY_ID", Value: creds.AccessKeyID},
				{Name: "AWS_SECRET_ACCESS_KEY", Value: creds.SecretAccessKey},
				{Name: "AWS_SESSION_TOKEN", Value: creds.SessionToken},
			},
			InteractiveMode: clientcmdapi.NeverExecInteractiveMode,
		},
	}
	cfg.CurrentContext = name
	return cfg
}

// WriteKubeconfig writes the kubeconfig to path, or to a new temp file
// when path is empty, and returns the path written.
func (m *ClusterManager) WriteKubeconfig(ctx context.Context, path string) (string, error) {
	cfg, err := m.Kubeconfig(ctx)
	if err != nil {
		return "", err
	}
	return writeKubeconfig(cfg, path)
}

func writeKubeconfig(cfg *clientcmdapi.Config, path string) (string, error) {
	if path == "" {
		f, err := os.CreateTemp("", tempFilePattern)
		if err != nil {
			return "", fmt.Errorf("create kubeconfig file: %w", err)
		}
		path = f.Name()
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close kubeconfig file: %w", err)
		}
	}

	if err := clientcmd.WriteToFile(*cfg, path); err != nil {
		return "", fmt.Errorf("write kubeconfig %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("kubeconfig written")
	return path, nil
}
