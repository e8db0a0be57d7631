package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/refmap/lib/refmap"
	"github.com/ValentinKolb/refmap/lib/refmap/engines/hybrid"
)

// --------------------------------------------------------------------------
// Cache configuration struct
// --------------------------------------------------------------------------

// CacheConfig holds all configuration parameters of a map created by the CLI
type CacheConfig struct {
	Name   string
	Policy string

	// retention and reclamation
	RetentionSize      int
	WeakTierSize       int
	SoftBudgetBytes    int64
	HeapSoftLimitBytes uint64
	ReclaimInterval    time.Duration
	GCDriven           bool
	InitialCapacity    int

	// HTTP api settings
	Endpoint string

	// Logging configuration
	LogLevel string
}

// ToOptions converts the configuration into hybrid map options
func (c *CacheConfig) ToOptions() (*hybrid.Options, error) {
	policy, err := refmap.ParsePolicy(c.Policy)
	if err != nil {
		return nil, err
	}
	if c.RetentionSize < 0 {
		return nil, fmt.Errorf("invalid retention size %d: must not be negative", c.RetentionSize)
	}
	if c.ReclaimInterval < 0 {
		return nil, fmt.Errorf("invalid reclaim interval %s: must not be negative", c.ReclaimInterval)
	}

	opts := hybrid.DefaultOptions()
	opts.Name = c.Name
	opts.Policy = policy
	opts.RetentionSize = c.RetentionSize
	opts.WeakTierSize = c.WeakTierSize
	opts.SoftBudgetBytes = c.SoftBudgetBytes
	opts.HeapSoftLimitBytes = c.HeapSoftLimitBytes
	opts.ReclaimInterval = c.ReclaimInterval
	opts.GCDriven = c.GCDriven
	opts.InitialCapacity = c.InitialCapacity
	return opts, nil
}

// String returns a formatted string representation of the configuration
func (c *CacheConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Cache settings
	addSection("Cache")
	addField("Name", c.Name)
	addField("Policy", c.Policy)
	addField("Retention Size", strconv.Itoa(c.RetentionSize))
	addField("Initial Capacity", strconv.Itoa(c.InitialCapacity))

	// Reclamation
	addSection("Reclamation")
	if c.WeakTierSize > 0 {
		addField("Weak Tier Size", strconv.Itoa(c.WeakTierSize))
	} else {
		addField("Weak Tier Size", "unbounded")
	}
	if c.SoftBudgetBytes > 0 {
		addField("Soft Budget", fmt.Sprintf("%d bytes", c.SoftBudgetBytes))
	} else {
		addField("Soft Budget", "disabled")
	}
	if c.ReclaimInterval > 0 {
		addField("Reclaim Interval", c.ReclaimInterval.String())
	} else {
		addField("Reclaim Interval", "disabled")
	}
	addField("GC Driven", strconv.FormatBool(c.GCDriven))
	if c.GCDriven && c.HeapSoftLimitBytes > 0 {
		addField("Heap Soft Limit", fmt.Sprintf("%d bytes", c.HeapSoftLimitBytes))
	}

	// HTTP settings
	if c.Endpoint != "" {
		addSection("HTTP Server")
		addField("Endpoint", c.Endpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
