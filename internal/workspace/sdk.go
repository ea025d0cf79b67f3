package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/databricks/databricks-sdk-go"
	"github.com/databricks/databricks-sdk-go/apierr"
	"github.com/databricks/databricks-sdk-go/service/compute"
	"github.com/databricks/databricks-sdk-go/service/sql"
)

// SDKClient implements API on top of the Databricks Go SDK.
type SDKClient struct {
	client *databricks.WorkspaceClient
}

func NewSDKClient(host, token string) (*SDKClient, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("workspace host is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("workspace token is required")
	}
	client, err := databricks.NewWorkspaceClient(&databricks.Config{
		Host:  strings.TrimSpace(host),
		Token: strings.TrimSpace(token),
	})
	if err != nil {
		return nil, fmt.Errorf("create workspace client: %w", err)
	}
	return &SDKClient{client: client}, nil
}

func (c *SDKClient) GetWarehouse(ctx context.Context, id string) (Warehouse, error) {
	wh, err := c.client.Warehouses.GetById(ctx, id)
	if err != nil {
		return Warehouse{}, mapSDKErr(err)
	}
	out := Warehouse{
		ID:                 wh.Id,
		Name:               wh.Name,
		State:              string(wh.State),
		ClusterSize:        wh.ClusterSize,
		Serverless:         wh.EnableServerlessCompute,
		MinNumClusters:     wh.MinNumClusters,
		MaxNumClusters:     wh.MaxNumClusters,
		Photon:             wh.EnablePhoton,
		SpotInstancePolicy: string(wh.SpotInstancePolicy),
	}
	if wh.Health != nil {
		out.HealthStatus = string(wh.Health.Status)
	}
	return out, nil
}

func (c *SDKClient) StartWarehouse(ctx context.Context, id string) error {
	if _, err := c.client.Warehouses.Start(ctx, sql.StartRequest{Id: id}); err != nil {
		return mapSDKErr(err)
	}
	return nil
}

func (c *SDKClient) GetCluster(ctx context.Context, id string) (Cluster, error) {
	details, err := c.client.Clusters.GetByClusterId(ctx, id)
	if err != nil {
		return Cluster{}, mapSDKErr(err)
	}
	out := Cluster{
		ID:               details.ClusterId,
		Name:             details.ClusterName,
		State:            string(details.State),
		HasDriver:        details.Driver != nil,
		SparkVersion:     details.SparkVersion,
		NumWorkers:       details.NumWorkers,
		NodeTypeID:       details.NodeTypeId,
		DriverNodeTypeID: details.DriverNodeTypeId,
		RuntimeEngine:    string(details.RuntimeEngine),
		DataSecurityMode: string(details.DataSecurityMode),
	}
	if details.Autoscale != nil {
		out.Autoscale = &Autoscale{
			MinWorkers: details.Autoscale.MinWorkers,
			MaxWorkers: details.Autoscale.MaxWorkers,
		}
	}
	if details.AwsAttributes != nil {
		out.AWSAvailability = string(details.AwsAttributes.Availability)
	}
	return out, nil
}

func (c *SDKClient) StartCluster(ctx context.Context, id string) error {
	if _, err := c.client.Clusters.Start(ctx, compute.StartCluster{ClusterId: id}); err != nil {
		return mapSDKErr(err)
	}
	return nil
}

func (c *SDKClient) ListNodeTypes(ctx context.Context) ([]NodeType, error) {
	resp, err := c.client.Clusters.ListNodeTypes(ctx)
	if err != nil {
		return nil, mapSDKErr(err)
	}
	out := make([]NodeType, 0, len(resp.NodeTypes))
	for _, nodeType := range resp.NodeTypes {
		item := NodeType{
			ID:       nodeType.NodeTypeId,
			NumCores: nodeType.NumCores,
			MemoryMB: nodeType.MemoryMb,
		}
		if nodeType.NodeInstanceType != nil {
			item.InstanceTypeID = nodeType.NodeInstanceType.InstanceTypeId
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *SDKClient) WorkspaceID(ctx context.Context) (int64, error) {
	id, err := c.client.CurrentWorkspaceID(ctx)
	if err != nil {
		return 0, mapSDKErr(err)
	}
	return id, nil
}

func mapSDKErr(err error) error {
	if errors.Is(err, apierr.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
