// config/config_test.go
package config

import (
	"testing"
	"time"
)

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("BRIDGE_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatal("ожидалась ошибка при отсутствии токена")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("BRIDGE_TOKEN", "123456:ABCDEF")
	t.Setenv("BRIDGE_ADMIN_GROUP_ID", "-1001234567890")
	t.Setenv("BRIDGE_ADMIN_IDS", "1, 2, мусор, 3")
	t.Setenv("BRIDGE_MAX_RETRIES", "7")
	t.Setenv("BRIDGE_MEDIA_GROUP_DELAY", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("загрузка конфигурации: %v", err)
	}

	if cfg.AdminGroupID != -1001234567890 {
		t.Errorf("AdminGroupID = %d", cfg.AdminGroupID)
	}
	if len(cfg.AdminUserIDs) != 3 {
		t.Errorf("некорректные ID операторов должны пропускаться: %v", cfg.AdminUserIDs)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.InitialWait != 1*time.Second || cfg.Retry.MaxWait != 60*time.Second {
		t.Errorf("паузы повторов должны остаться по умолчанию: %v..%v", cfg.Retry.InitialWait, cfg.Retry.MaxWait)
	}
	if cfg.MediaGroupDelay != 2*time.Second {
		t.Errorf("MediaGroupDelay = %v", cfg.MediaGroupDelay)
	}
}
