package types

// Telemetry metric names for CloudWatch.
const (
	// Metric Names
	MetricDispatchAttempt = "DispatchAttempt"
	MetricDispatchLatency = "DispatchLatency"
	MetricRecordsReceived = "RecordsReceived"
	MetricConfigFailure   = "RoutingConfigFailure"

	// Dimension Keys
	DimService  = "Service"
	DimResult   = "Result"
	DimFunction = "FunctionName"

	// Metric Namespace
	MetricNamespace = "AlertProcessor"
)

// SSRFBlockedCIDRs defines the IP ranges that outbound webhook delivery MUST
// never reach.
var SSRFBlockedCIDRs = []string{
	"127.0.0.0/8",     // Localhost
	"10.0.0.0/8",      // Private Class A
	"172.16.0.0/12",   // Private Class B
	"192.168.0.0/16",  // Private Class C
	"169.254.0.0/16",  // Link-local (AWS Metadata!)
	"0.0.0.0/8",       // Current network
	"224.0.0.0/4",     // Multicast
	"240.0.0.0/4",     // Reserved
	"100.64.0.0/10",   // Shared Address Space (CGN)
	"198.18.0.0/15",   // Benchmark testing
	"fc00::/7",        // IPv6 private
	"fe80::/10",       // IPv6 link-local
	"::1/128",         // IPv6 localhost
}
