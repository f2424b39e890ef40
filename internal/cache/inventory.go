package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	TenantHostKeyPrefix = "tenant_host:%s"
	SettingsKeyPrefix   = "settings:%d"
)

// Hostname resolutions are cached briefly so a burst of requests for a new
// tenant domain does not hammer the directory; short TTL keeps newly
// activated tenants visible quickly.
const (
	TenantHostTTL = 30 * time.Second
	SettingsTTL   = 5 * time.Minute
)

func TenantHostKey(hostname string) string {
	return fmt.Sprintf(TenantHostKeyPrefix, strings.ToLower(hostname))
}

func SettingsKey(tenantID uint) string {
	return fmt.Sprintf(SettingsKeyPrefix, tenantID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateTenantHost(ctx context.Context, hostname string) {
	Invalidate(ctx, TenantHostKey(hostname))
}

func InvalidateSettings(ctx context.Context, tenantID uint) {
	Invalidate(ctx, SettingsKey(tenantID))
}
