// Package kube talks to a Kubernetes cluster through client-go.
package kube

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// DefaultTimeout bounds each API request.
const DefaultTimeout = 30 * time.Second

// Pod is a summary of one pod.
type Pod struct {
	Name      string `json:"name" yaml:"name"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Phase     string `json:"phase" yaml:"phase"`
	Node      string `json:"node,omitempty" yaml:"node,omitempty"`
}

// NewClientset builds a clientset from a kubeconfig file.
func NewClientset(kubeconfigPath string) (kubernetes.Interface, error) {
	restCfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	return newClientset(restCfg)
}

// NewClientsetFromConfig builds a clientset from an in-memory kubeconfig
// using its current context.
func NewClientsetFromConfig(cfg *clientcmdapi.Config) (kubernetes.Interface, error) {
	restCfg, err := clientcmd.NewDefaultClientConfig(*cfg, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build rest config: %w", err)
	}
	return newClientset(restCfg)
}

func newClientset(restCfg *rest.Config) (kubernetes.Interface, error) {
	restCfg.Timeout = DefaultTimeout
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return clientset, nil
}

// ListPods returns the pods in namespace in API order.
func ListPods(ctx context.Context, client kubernetes.Interface, namespace string) ([]Pod, error) {
	list, err := client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods in %s: %w", namespace, err)
	}

	pods := make([]Pod, 0, len(list.Items))
	for _, p := range list.Items {
		pods = append(pods, Pod{
			Name:      p.Name,
			Namespace: p.Namespace,
			Phase:     string(p.Status.Phase),
			Node:      p.Spec.NodeName,
		})
	}
	return pods, nil
}
