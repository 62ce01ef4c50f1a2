package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/k3suav/antenna-scan/pkg/config"
	"github.com/k3suav/antenna-scan/pkg/models"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// MissionKind is the kind of the mission custom resource
const MissionKind = "ScanMission"

// Client is a Kubernetes client wrapper for ScanMission CRD operations
type Client struct {
	dynamicClient dynamic.Interface
	clientset     kubernetes.Interface
	config        *config.Config
	gvr           schema.GroupVersionResource
	now           func() time.Time
}

// NewClient creates a new Kubernetes client
func NewClient(cfg *config.Config) (*Client, error) {
	var k8sConfig *rest.Config
	var err error

	// Try to use in-cluster config first, then kubeconfig
	if cfg.Kubernetes.KubeconfigPath == "" {
		k8sConfig, err = rest.InClusterConfig()
		if err != nil {
			// Fall back to default kubeconfig location
			k8sConfig, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
			if err != nil {
				return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
			}
		}
	} else {
		k8sConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubernetes.KubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config from %s: %w", cfg.Kubernetes.KubeconfigPath, err)
		}
	}

	dynamicClient, err := dynamic.NewForConfig(k8sConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(k8sConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return newClient(cfg, dynamicClient, clientset), nil
}

func newClient(cfg *config.Config, dyn dynamic.Interface, cs kubernetes.Interface) *Client {
	return &Client{
		dynamicClient: dyn,
		clientset:     cs,
		config:        cfg,
		gvr:           GVR(cfg.Kubernetes),
		now:           time.Now,
	}
}

// GVR returns the mission resource for the configured group and version.
func GVR(cfg config.K8sConfig) schema.GroupVersionResource {
	return schema.GroupVersionResource{
		Group:    cfg.CRDGroup,
		Version:  cfg.CRDVersion,
		Resource: cfg.CRDResource,
	}
}

// ResourceName returns the ScanMission object name for a mission.
func ResourceName(mission string) string {
	return fmt.Sprintf("scan-%s", mission)
}

func (c *Client) resource() dynamic.ResourceInterface {
	return c.dynamicClient.Resource(c.gvr).Namespace(c.config.Kubernetes.Namespace)
}

// CreateOrUpdateMission creates or updates a ScanMission CRD
func (c *Client) CreateOrUpdateMission(ctx context.Context, spec *MissionSpec) error {
	if c.dynamicClient == nil {
		return models.ErrK8sClientNotInitialized
	}

	obj, err := c.specToUnstructured(spec)
	if err != nil {
		return fmt.Errorf("failed to convert mission to unstructured: %w", err)
	}

	name := ResourceName(spec.MissionName)
	obj.SetName(name)
	obj.SetNamespace(c.config.Kubernetes.Namespace)
	obj.SetLabels(map[string]string{
		"app":       "antenna-scan",
		"mission":   spec.MissionName,
		"node-name": spec.NodeName,
	})

	existing, err := c.resource().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := c.resource().Create(ctx, obj, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("%w: create %s: %w", models.ErrCRDUpdateFailed, name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: get %s: %w", models.ErrCRDUpdateFailed, name, err)
	}

	// Resource exists, update it
	obj.SetResourceVersion(existing.GetResourceVersion())
	if _, err := c.resource().Update(ctx, obj, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("%w: update %s: %w", models.ErrCRDUpdateFailed, name, err)
	}
	return nil
}

// CreateOrUpdateWithRetry creates or updates with retry logic
func (c *Client) CreateOrUpdateWithRetry(ctx context.Context, spec *MissionSpec) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.Kubernetes.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.Kubernetes.RetryDelay):
			}
		}

		err := c.CreateOrUpdateMission(ctx, spec)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d attempts: %w", c.config.Kubernetes.RetryAttempts+1, lastErr)
}

// GetMission retrieves the spec and status of a ScanMission CRD
func (c *Client) GetMission(ctx context.Context, mission string) (*MissionSpec, *MissionStatus, error) {
	obj, err := c.resource().Get(ctx, ResourceName(mission), metav1.GetOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get ScanMission: %w", err)
	}

	var spec MissionSpec
	if err := fromNested(obj, "spec", &spec); err != nil {
		return nil, nil, err
	}

	var status *MissionStatus
	if _, found, _ := unstructured.NestedMap(obj.Object, "status"); found {
		status = &MissionStatus{}
		if err := fromNested(obj, "status", status); err != nil {
			return nil, nil, err
		}
	}
	return &spec, status, nil
}

// UpdateStatus updates the status subresource
func (c *Client) UpdateStatus(ctx context.Context, mission string, status MissionStatus) error {
	name := ResourceName(mission)

	obj, err := c.resource().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get ScanMission for status update: %w", err)
	}

	if status.LastUpdated == "" {
		status.LastUpdated = c.now().UTC().Format(time.RFC3339)
	}
	fields, err := toMap(status)
	if err != nil {
		return err
	}
	if err := unstructured.SetNestedMap(obj.Object, fields, "status"); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}

	if _, err := c.resource().UpdateStatus(ctx, obj, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("%w: status of %s: %w", models.ErrCRDUpdateFailed, name, err)
	}
	return nil
}

// RecordEvent posts a core/v1 Event against the mission resource.
func (c *Client) RecordEvent(ctx context.Context, mission, eventType, reason, message string) error {
	if c.clientset == nil {
		return models.ErrK8sClientNotInitialized
	}

	ns := c.config.Kubernetes.Namespace
	name := ResourceName(mission)
	now := metav1.NewTime(c.now())

	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s.%x", name, now.UnixNano()),
			Namespace: ns,
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: c.gvr.GroupVersion().String(),
			Kind:       MissionKind,
			Name:       name,
			Namespace:  ns,
		},
		Reason:  reason,
		Message: message,
		Type:    eventType,
		Source: corev1.EventSource{
			Component: "antenna-scan",
			Host:      c.config.Agent.NodeName,
		},
		FirstTimestamp: now,
		LastTimestamp:  now,
		Count:          1,
	}

	if _, err := c.clientset.CoreV1().Events(ns).Create(ctx, event, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("failed to record event %s: %w", reason, err)
	}
	return nil
}

// Helper functions

func (c *Client) specToUnstructured(spec *MissionSpec) (*unstructured.Unstructured, error) {
	fields, err := toMap(spec)
	if err != nil {
		return nil, err
	}

	return &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": c.gvr.GroupVersion().String(),
			"kind":       MissionKind,
			"spec":       fields,
		},
	}, nil
}

// toMap round-trips v through JSON so every number is a float64, which is
// what unstructured deep copies accept.
func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromNested(obj *unstructured.Unstructured, field string, out interface{}) error {
	m, found, err := unstructured.NestedMap(obj.Object, field)
	if err != nil || !found {
		return fmt.Errorf("%s not found in unstructured object", field)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
