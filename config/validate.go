package config

import "fmt"

// ValidateConfig runs every explicit range check in order and returns
// the first one that fails, matching the teacher's fail-fast
// ValidateConfig style: no
// tunable is allowed to silently coerce to a usable default once a
// config file is loaded.
func ValidateConfig(c EngineConfig) error {
	if c.PartitionPrefix == "" {
		return fmt.Errorf("config: PartitionPrefix must not be empty")
	}
	if c.MailboxSize <= 0 {
		return fmt.Errorf("config: MailboxSize must be > 0")
	}
	if c.DequeSize <= 0 {
		return fmt.Errorf("config: DequeSize must be > 0")
	}
	if c.MaxUploadsOutstanding <= 0 {
		return fmt.Errorf("config: MaxUploadsOutstanding must be > 0")
	}
	if c.MaxPendingSeedListeners <= 0 {
		return fmt.Errorf("config: MaxPendingSeedListeners must be > 0")
	}
	if c.MaxRepair <= 0 {
		return fmt.Errorf("config: MaxRepair must be > 0")
	}
	if c.ProposeTimeoutMillis <= 0 || c.PrevoteTimeoutMillis <= 0 || c.PrecommitTimeoutMillis <= 0 {
		return fmt.Errorf("config: phase timeouts must be > 0")
	}
	if c.ActivityTimeoutViews == 0 {
		return fmt.Errorf("config: ActivityTimeoutViews must be > 0")
	}
	if c.AggregationWindow <= 0 {
		return fmt.Errorf("config: AggregationWindow must be > 0")
	}
	if c.RebroadcastTimeoutSecs <= 0 {
		return fmt.Errorf("config: RebroadcastTimeoutSecs must be > 0")
	}
	if c.FreezerTableResizeFrequency <= 0 || c.FreezerTableResizeChunkSize <= 0 {
		return fmt.Errorf("config: freezer resize parameters must be > 0")
	}
	if c.MMRItemsPerBlob <= 0 || c.LogItemsPerSection <= 0 || c.LocationsItemsPerBlob <= 0 ||
		c.CertificatesItemsPerBlob <= 0 || c.CacheItemsPerBlob <= 0 {
		return fmt.Errorf("config: per-blob/section item counts must be > 0")
	}
	return nil
}
