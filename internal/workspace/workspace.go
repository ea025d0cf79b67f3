package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dbxbench/dbxbench/internal/observability"
)

const (
	WarehouseStopped = "STOPPED"
	WarehouseRunning = "RUNNING"
	WarehouseHealthy = "HEALTHY"

	ClusterTerminated = "TERMINATED"
	ClusterRunning    = "RUNNING"
)

var ErrNotFound = errors.New("resource not found")

type Warehouse struct {
	ID                 string
	Name               string
	State              string
	HealthStatus       string
	ClusterSize        string
	Serverless         bool
	MinNumClusters     int
	MaxNumClusters     int
	Photon             bool
	SpotInstancePolicy string
}

type Autoscale struct {
	MinWorkers int
	MaxWorkers int
}

type Cluster struct {
	ID               string
	Name             string
	State            string
	HasDriver        bool
	SparkVersion     string
	NumWorkers       int
	Autoscale        *Autoscale
	NodeTypeID       string
	DriverNodeTypeID string
	RuntimeEngine    string
	AWSAvailability  string
	DataSecurityMode string
}

type NodeType struct {
	ID             string
	InstanceTypeID string
	NumCores       float64
	MemoryMB       int
}

// API is the subset of the workspace REST surface the benchmarks touch.
type API interface {
	GetWarehouse(ctx context.Context, id string) (Warehouse, error)
	StartWarehouse(ctx context.Context, id string) error
	GetCluster(ctx context.Context, id string) (Cluster, error)
	StartCluster(ctx context.Context, id string) error
	ListNodeTypes(ctx context.Context) ([]NodeType, error)
	WorkspaceID(ctx context.Context) (int64, error)
}

// Checker blocks until warehouses and clusters are usable, starting them when
// they are stopped. Polling uses a fixed interval with no backoff.
type Checker struct {
	API          API
	PollInterval time.Duration
	Logger       *slog.Logger
	Sleep        func(ctx context.Context, d time.Duration) error
	Clock        func() time.Time
}

func (c *Checker) ensureDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 20 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

func (c *Checker) WaitForWarehouse(ctx context.Context, id string) error {
	c.ensureDefaults()
	start := c.Clock()
	for {
		warehouse, err := c.API.GetWarehouse(ctx, id)
		if err != nil {
			return fmt.Errorf("get warehouse %q: %w", id, err)
		}
		observability.ObserveHealthPoll("warehouse", warehouse.State)
		attrs := []any{slog.String("name", warehouse.Name), slog.String("id", warehouse.ID)}

		switch {
		case warehouse.State == WarehouseStopped:
			c.Logger.InfoContext(ctx, "warehouse is STOPPED, starting it", attrs...)
			if err := c.API.StartWarehouse(ctx, id); err != nil {
				return fmt.Errorf("start warehouse %q: %w", id, err)
			}
		case warehouse.State != WarehouseRunning:
			c.Logger.InfoContext(ctx, "warehouse not RUNNING, retrying",
				append(attrs, slog.String("state", warehouse.State), slog.Duration("retry_in", c.PollInterval))...)
		case warehouse.HealthStatus != "" && warehouse.HealthStatus != WarehouseHealthy:
			c.Logger.InfoContext(ctx, "warehouse not HEALTHY, retrying",
				append(attrs, slog.String("health", warehouse.HealthStatus), slog.Duration("retry_in", c.PollInterval))...)
		default:
			c.Logger.InfoContext(ctx, "health check: warehouse is RUNNING and HEALTHY", attrs...)
			observability.ObserveHealthWait("warehouse", c.Clock().Sub(start))
			return nil
		}

		if err := c.Sleep(ctx, c.PollInterval); err != nil {
			return fmt.Errorf("wait for warehouse %q: %w", id, err)
		}
	}
}

func (c *Checker) WaitForCluster(ctx context.Context, id string) error {
	c.ensureDefaults()
	start := c.Clock()
	for {
		cluster, err := c.API.GetCluster(ctx, id)
		if err != nil {
			return fmt.Errorf("get cluster %q: %w", id, err)
		}
		observability.ObserveHealthPoll("cluster", cluster.State)
		attrs := []any{slog.String("name", cluster.Name), slog.String("id", cluster.ID)}

		switch {
		case cluster.State == ClusterTerminated:
			c.Logger.InfoContext(ctx, "cluster is TERMINATED, starting it", attrs...)
			if err := c.API.StartCluster(ctx, id); err != nil {
				return fmt.Errorf("start cluster %q: %w", id, err)
			}
		case cluster.State != ClusterRunning:
			c.Logger.InfoContext(ctx, "cluster not RUNNING, retrying",
				append(attrs, slog.String("state", cluster.State), slog.Duration("retry_in", c.PollInterval))...)
		case !cluster.HasDriver:
			c.Logger.InfoContext(ctx, "cluster is RUNNING but has no driver node, retrying",
				append(attrs, slog.Duration("retry_in", c.PollInterval))...)
		default:
			c.Logger.InfoContext(ctx, "health check: cluster is RUNNING, driver present", attrs...)
			observability.ObserveHealthWait("cluster", c.Clock().Sub(start))
			return nil
		}

		if err := c.Sleep(ctx, c.PollInterval); err != nil {
			return fmt.Errorf("wait for cluster %q: %w", id, err)
		}
	}
}

// WaitForSQLResource checks whichever resource a SQL connector http path
// targets: warehouses for /sql/1.0/warehouses/<id>, clusters otherwise.
func (c *Checker) WaitForSQLResource(ctx context.Context, httpPath string) error {
	resourceID := ResourceIDFromHTTPPath(httpPath)
	if resourceID == "" {
		return fmt.Errorf("invalid http path %q", httpPath)
	}
	if IsWarehousePath(httpPath) {
		return c.WaitForWarehouse(ctx, resourceID)
	}
	return c.WaitForCluster(ctx, resourceID)
}

func ResourceIDFromHTTPPath(httpPath string) string {
	idx := strings.LastIndex(httpPath, "/")
	return strings.TrimSpace(httpPath[idx+1:])
}

func IsWarehousePath(httpPath string) bool {
	return strings.Contains(httpPath, "/warehouses/")
}

func WarehouseHTTPPath(warehouseID string) string {
	return "/sql/1.0/warehouses/" + warehouseID
}

// ClusterHTTPPath resolves the workspace id and returns the SQL connector
// path for an all-purpose cluster.
func ClusterHTTPPath(ctx context.Context, api API, clusterID string) (string, error) {
	if strings.TrimSpace(clusterID) == "" {
		return "", fmt.Errorf("cluster id is required")
	}
	workspaceID, err := api.WorkspaceID(ctx)
	if err != nil {
		return "", fmt.Errorf("get workspace id: %w", err)
	}
	return fmt.Sprintf("/sql/protocolv1/o/%d/%s", workspaceID, clusterID), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
