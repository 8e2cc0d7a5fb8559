package models

import "time"

// Frame is one tick of engine output, handed to a sink.
type Frame struct {
	Hostname  string    `json:"hostname" yaml:"hostname"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Sequence  uint64    `json:"sequence" yaml:"sequence"`

	// Host is only set on the first frame.
	Host *HostInfo `json:"host,omitempty" yaml:"host,omitempty"`

	CPU        *CPUMetrics        `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	Memory     *MemoryMetrics     `json:"memory,omitempty" yaml:"memory,omitempty"`
	Network    *NetworkMetrics    `json:"network,omitempty" yaml:"network,omitempty"`
	Processes  *ProcessList       `json:"processes,omitempty" yaml:"processes,omitempty"`
	Detail     *DetailMetrics     `json:"detail,omitempty" yaml:"detail,omitempty"`
	Enrichment []EnrichmentStatus `json:"enrichment,omitempty" yaml:"enrichment,omitempty"`
}

// HostInfo contains rarely-changing host facts
type HostInfo struct {
	Hostname        string `json:"hostname" yaml:"hostname"`
	Platform        string `json:"platform" yaml:"platform"`               // ubuntu, centos, etc.
	PlatformFamily  string `json:"platform_family" yaml:"platform_family"` // debian, rhel, etc.
	PlatformVersion string `json:"platform_version" yaml:"platform_version"`
	OS              string `json:"os" yaml:"os"`                   // linux, darwin, windows
	Arch            string `json:"arch" yaml:"arch"`               // amd64, arm64
	KernelVersion   string `json:"kernel_version" yaml:"kernel_version"`
	Virtualization  string `json:"virtualization,omitempty" yaml:"virtualization,omitempty"`

	CPUModel    string `json:"cpu_model" yaml:"cpu_model"`
	CPUCores    int    `json:"cpu_cores" yaml:"cpu_cores"`     // Physical cores
	CPUThreads  int    `json:"cpu_threads" yaml:"cpu_threads"` // Logical processors
	TotalMemory uint64 `json:"total_memory" yaml:"total_memory"`

	BootTime uint64 `json:"boot_time" yaml:"boot_time"` // Unix timestamp
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// CPUMetrics contains CPU usage information
type CPUMetrics struct {
	UsagePercent int            `json:"usage_percent" yaml:"usage_percent"`
	History      []int          `json:"history" yaml:"history"`
	Cores        []CoreMetrics  `json:"cores" yaml:"cores"`
	Fields       map[string]int `json:"fields" yaml:"fields"` // user, system, iowait, ...
	LoadAvg1m    float64        `json:"load_avg_1m" yaml:"load_avg_1m"`
	LoadAvg5m    float64        `json:"load_avg_5m" yaml:"load_avg_5m"`
	LoadAvg15m   float64        `json:"load_avg_15m" yaml:"load_avg_15m"`
}

// CoreMetrics is one logical core
type CoreMetrics struct {
	Percent int   `json:"percent" yaml:"percent"`
	History []int `json:"history" yaml:"history"`
}

// MemoryMetrics contains memory usage information
type MemoryMetrics struct {
	Total     uint64 `json:"total" yaml:"total"`
	Used      uint64 `json:"used" yaml:"used"`
	Available uint64 `json:"available" yaml:"available"`
	Cached    uint64 `json:"cached" yaml:"cached"`
	Free      uint64 `json:"free" yaml:"free"`

	// Percent and History are keyed by used, available, cached and free.
	Percent map[string]int   `json:"percent" yaml:"percent"`
	History map[string][]int `json:"history" yaml:"history"`

	Swap  *SwapMetrics  `json:"swap,omitempty" yaml:"swap,omitempty"`
	Disks []DiskMetrics `json:"disks,omitempty" yaml:"disks,omitempty"`
}

// SwapMetrics contains swap usage information
type SwapMetrics struct {
	Total       uint64 `json:"total" yaml:"total"`
	Used        uint64 `json:"used" yaml:"used"`
	Free        uint64 `json:"free" yaml:"free"`
	UsedPercent int    `json:"used_percent" yaml:"used_percent"`
	FreePercent int    `json:"free_percent" yaml:"free_percent"`
	UsedHistory []int  `json:"used_history" yaml:"used_history"`
	FreeHistory []int  `json:"free_history" yaml:"free_history"`
}

// DiskMetrics is one mounted filesystem
type DiskMetrics struct {
	Name        string `json:"name" yaml:"name"`
	Mountpoint  string `json:"mountpoint" yaml:"mountpoint"`
	Device      string `json:"device" yaml:"device"`
	Fstype      string `json:"fstype" yaml:"fstype"`
	Total       uint64 `json:"total" yaml:"total"`
	Used        uint64 `json:"used" yaml:"used"`
	Free        uint64 `json:"free" yaml:"free"`
	UsedPercent int    `json:"used_percent" yaml:"used_percent"`
	FreePercent int    `json:"free_percent" yaml:"free_percent"`

	ReadSpeed       uint64   `json:"read_speed" yaml:"read_speed"`   // bytes/s
	WriteSpeed      uint64   `json:"write_speed" yaml:"write_speed"` // bytes/s
	ReadTotal       uint64   `json:"read_total" yaml:"read_total"`
	WriteTotal      uint64   `json:"write_total" yaml:"write_total"`
	IOActivity      int      `json:"io_activity" yaml:"io_activity"` // percent busy
	ReadHistory     []uint64 `json:"read_history" yaml:"read_history"`
	WriteHistory    []uint64 `json:"write_history" yaml:"write_history"`
	ActivityHistory []int    `json:"activity_history" yaml:"activity_history"`
}

// NetworkMetrics describes the selected interface
type NetworkMetrics struct {
	Interface  string           `json:"interface" yaml:"interface"`
	Connected  bool             `json:"connected" yaml:"connected"`
	IPv4       string           `json:"ipv4,omitempty" yaml:"ipv4,omitempty"`
	IPv6       string           `json:"ipv6,omitempty" yaml:"ipv6,omitempty"`
	Download   NetworkDirection `json:"download" yaml:"download"`
	Upload     NetworkDirection `json:"upload" yaml:"upload"`
	Sync       bool             `json:"sync" yaml:"sync"`
	Auto       bool             `json:"auto" yaml:"auto"`
	Redraw     bool             `json:"redraw" yaml:"redraw"` // ceilings changed this tick
	Interfaces []string         `json:"interfaces" yaml:"interfaces"`
}

// NetworkDirection is one traffic direction of an interface
type NetworkDirection struct {
	Speed   uint64   `json:"speed" yaml:"speed"` // bytes/s
	Top     uint64   `json:"top" yaml:"top"`
	Total   uint64   `json:"total" yaml:"total"`
	Ceiling uint64   `json:"ceiling" yaml:"ceiling"` // graph scale, bytes/s
	History []uint64 `json:"history" yaml:"history"`
}

// ProcessList is the arranged process or service table
type ProcessList struct {
	Services bool         `json:"services" yaml:"services"`
	Sorting  string       `json:"sorting" yaml:"sorting"`
	Reversed bool         `json:"reversed" yaml:"reversed"`
	Tree     bool         `json:"tree" yaml:"tree"`
	Filter   string       `json:"filter,omitempty" yaml:"filter,omitempty"`
	Total    int          `json:"total" yaml:"total"`
	Visible  int          `json:"visible" yaml:"visible"`
	Rows     []ProcessRow `json:"rows" yaml:"rows"` // visible rows only
}

// ProcessRow is one displayed process or service
type ProcessRow struct {
	PID           int32   `json:"pid" yaml:"pid"`
	PPID          int32   `json:"ppid" yaml:"ppid"`
	Name          string  `json:"name" yaml:"name"`
	Command       string  `json:"command" yaml:"command"`
	Owner         string  `json:"owner" yaml:"owner"`
	Threads       int64   `json:"threads" yaml:"threads"`
	Memory        uint64  `json:"memory" yaml:"memory"`
	CPUPercent    float64 `json:"cpu_percent" yaml:"cpu_percent"`
	CPUCumulative float64 `json:"cpu_cumulative" yaml:"cpu_cumulative"`
	TreeIndex     int     `json:"tree_index" yaml:"tree_index"`
	Depth         int     `json:"depth,omitempty" yaml:"depth,omitempty"`
	Prefix        string  `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Collapsed     bool    `json:"collapsed,omitempty" yaml:"collapsed,omitempty"`
}

// DetailMetrics is the expanded view of one process or service
type DetailMetrics struct {
	PID           int32      `json:"pid" yaml:"pid"`
	Name          string     `json:"name" yaml:"name"`
	Status        string     `json:"status" yaml:"status"`
	Row           ProcessRow `json:"row" yaml:"row"`
	CPUHistory    []int      `json:"cpu_history" yaml:"cpu_history"`
	MemoryHistory []uint64   `json:"memory_history" yaml:"memory_history"`
	MemoryPercent float64    `json:"memory_percent" yaml:"memory_percent"`
	MemoryScale   uint64     `json:"memory_scale" yaml:"memory_scale"`
	Memory        string     `json:"memory" yaml:"memory"`
	IORead        string     `json:"io_read,omitempty" yaml:"io_read,omitempty"`
	IOWrite       string     `json:"io_write,omitempty" yaml:"io_write,omitempty"`
	Elapsed       string     `json:"elapsed" yaml:"elapsed"`
	Parent        string     `json:"parent,omitempty" yaml:"parent,omitempty"`

	Owner       string `json:"owner,omitempty" yaml:"owner,omitempty"`
	StartMode   string `json:"start_mode,omitempty" yaml:"start_mode,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	CanStop     bool   `json:"can_stop,omitempty" yaml:"can_stop,omitempty"`
	CanReload   bool   `json:"can_reload,omitempty" yaml:"can_reload,omitempty"`
}

// EnrichmentStatus reports one background enrichment worker
type EnrichmentStatus struct {
	Name           string    `json:"name" yaml:"name"`
	Disabled       bool      `json:"disabled" yaml:"disabled"`
	Busy           bool      `json:"busy" yaml:"busy"`
	Entries        int       `json:"entries" yaml:"entries"`
	Cycles         uint64    `json:"cycles" yaml:"cycles"`
	LastCycle      time.Time `json:"last_cycle,omitempty" yaml:"last_cycle,omitempty"`
	LastDurationMs int64     `json:"last_duration_ms" yaml:"last_duration_ms"`
	Error          string    `json:"error,omitempty" yaml:"error,omitempty"`
}
