package analytics

import (
	"sync"
	"time"
)

// Cache holds the last computed report per device with bounded size. When
// the limit is exceeded the device with the stalest report is evicted.
type Cache struct {
	mu        sync.RWMutex
	byDevice  map[string]DeviceAnalytics
	updatedAt map[string]time.Time
	limit     int
}

func NewCache(limit int) *Cache {
	if limit <= 0 {
		limit = 5000
	}
	return &Cache{
		byDevice:  make(map[string]DeviceAnalytics),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

func (c *Cache) Update(report DeviceAnalytics) {
	if report.DeviceID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byDevice[report.DeviceID] = report
	c.updatedAt[report.DeviceID] = time.Now().UTC()
	if len(c.byDevice) > c.limit {
		c.evictOldest()
	}
}

func (c *Cache) Get(deviceID string) (DeviceAnalytics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	report, ok := c.byDevice[deviceID]
	return report, ok
}

func (c *Cache) GetAll() map[string]DeviceAnalytics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]DeviceAnalytics, len(c.byDevice))
	for id, report := range c.byDevice {
		out[id] = report
	}
	return out
}

func (c *Cache) evictOldest() {
	var oldestDevice string
	var oldest time.Time
	for id, ts := range c.updatedAt {
		if oldestDevice == "" || ts.Before(oldest) {
			oldestDevice = id
			oldest = ts
		}
	}
	if oldestDevice != "" {
		delete(c.byDevice, oldestDevice)
		delete(c.updatedAt, oldestDevice)
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byDevice = make(map[string]DeviceAnalytics)
	c.updatedAt = make(map[string]time.Time)
}
