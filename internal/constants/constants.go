package constants

import (
	"time"
)

// REST endpoints
const (
	RestBasePath       = "/rest/v1"
	VirDomainPath      = RestBasePath + "/VirDomain"
	NodePath           = RestBasePath + "/Node"
	VirtualDiskPath    = RestBasePath + "/VirtualDisk"
	VirtualDiskUpload  = VirtualDiskPath + "/upload"
	DNSConfigPath      = RestBasePath + "/DNSConfig"
	TaskTagPath        = RestBasePath + "/TaskTag"
	DefaultDNSConfigID = "dnsconfig_guid"
)

// Transport Constants
const (
	DefaultRequestTimeout = 60 * time.Second
	// Multi-gigabyte disk images need far more than the default timeout.
	UploadRequestTimeout = 3600 * time.Second
	DefaultUserAgent     = "hypercore-go"
)

// Task Polling Constants
const (
	DefaultPollInterval = 1 * time.Second
	DefaultPollTimeout  = 10 * time.Minute
	MinPollInterval     = 10 * time.Millisecond
)

// Environment variable names consulted by the CLI
const (
	EnvPrefix = "SC"
)
