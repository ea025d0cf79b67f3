package workspace

import (
	"context"
	"fmt"
	"strconv"
)

const (
	managed       = "(managed)"
	notApplicable = "N/A"
	unknown       = "?"
	unset         = "None"
)

// ComparisonRow is one line of the warehouse-vs-cluster instance table.
type ComparisonRow struct {
	Label     string
	Warehouse string
	Cluster   string
}

// ComparisonHeader is the header row of the instance table.
var ComparisonHeader = ComparisonRow{Label: "", Warehouse: "Warehouse", Cluster: "Cluster"}

// Describe fetches the configured warehouse and cluster and lays out their
// shape side by side.
func Describe(ctx context.Context, api API, warehouseID, clusterID string) ([]ComparisonRow, error) {
	warehouse, err := api.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("get warehouse %q: %w", warehouseID, err)
	}
	cluster, err := api.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("get cluster %q: %w", clusterID, err)
	}
	nodeTypes, err := api.ListNodeTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list node types: %w", err)
	}
	return Compare(warehouse, cluster, nodeTypes), nil
}

func Compare(warehouse Warehouse, cluster Cluster, nodeTypes []NodeType) []ComparisonRow {
	byID := make(map[string]NodeType, len(nodeTypes))
	for _, nodeType := range nodeTypes {
		byID[nodeType.ID] = nodeType
	}

	driverTypeID := cluster.DriverNodeTypeID
	if driverTypeID == "" {
		driverTypeID = cluster.NodeTypeID
	}
	workerTypeID := cluster.NodeTypeID
	driver, hasDriver := byID[driverTypeID]
	worker, hasWorker := byID[workerTypeID]

	clusterWorkers := strconv.Itoa(cluster.NumWorkers)
	if cluster.Autoscale != nil {
		clusterWorkers = fmt.Sprintf("%d–%d", cluster.Autoscale.MinWorkers, cluster.Autoscale.MaxWorkers)
	}

	return []ComparisonRow{
		{"Name", warehouse.Name, cluster.Name},
		{"Size / Spark ver", warehouse.ClusterSize, cluster.SparkVersion},
		{"Serverless", strconv.FormatBool(warehouse.Serverless), notApplicable},
		{"Workers", fmt.Sprintf("%d–%d clusters", warehouse.MinNumClusters, warehouse.MaxNumClusters), clusterWorkers},
		{"Driver instance", managed, instanceType(driver, hasDriver, driverTypeID)},
		{"Driver cores", managed, cores(driver, hasDriver)},
		{"Driver memory (MB)", managed, memory(driver, hasDriver)},
		{"Worker instance", managed, instanceType(worker, hasWorker, workerTypeID)},
		{"Worker cores", managed, cores(worker, hasWorker)},
		{"Worker memory (MB)", managed, memory(worker, hasWorker)},
		{"Photon", strconv.FormatBool(warehouse.Photon), orUnset(cluster.RuntimeEngine)},
		{"Spot policy", orUnset(warehouse.SpotInstancePolicy), orUnset(cluster.AWSAvailability)},
		{"Data security mode", notApplicable, orUnset(cluster.DataSecurityMode)},
	}
}

func instanceType(nodeType NodeType, ok bool, fallback string) string {
	if ok && nodeType.InstanceTypeID != "" {
		return nodeType.InstanceTypeID
	}
	return fallback
}

func cores(nodeType NodeType, ok bool) string {
	if !ok {
		return unknown
	}
	return strconv.FormatFloat(nodeType.NumCores, 'f', -1, 64)
}

func memory(nodeType NodeType, ok bool) string {
	if !ok {
		return unknown
	}
	return strconv.Itoa(nodeType.MemoryMB)
}

func orUnset(value string) string {
	if value == "" {
		return unset
	}
	return value
}
