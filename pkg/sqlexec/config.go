package sqlexec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/zamasskin/datashift/pkg/types"
)

// ConnConfig 데이터 소스 접속 설정
type ConnConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	File     string // sqlite
	SSLMode  string // postgres
}

var defaultPorts = map[types.SourceType]int{
	types.SourceTypeMySQL:      3306,
	types.SourceTypePostgres:   5432,
	types.SourceTypeClickHouse: 9000,
}

// ParseConnConfig DataSource.config 맵을 엔진별 접속 설정으로 변환
func ParseConnConfig(kind types.SourceType, config map[string]any) (*ConnConfig, error) {
	cfg := &ConnConfig{
		Port:    defaultPorts[kind],
		SSLMode: "disable",
	}

	if kind == types.SourceTypeSQLite {
		cfg.File = firstString(config, "file", "filename", "path", "database")
		if cfg.File == "" {
			return nil, errors.New("sqlite file path is required")
		}
		return cfg, nil
	}

	// Host
	cfg.Host = firstString(config, "host")
	if cfg.Host == "" {
		return nil, errors.Errorf("%s host is required", kind)
	}

	// Port
	if port, ok := intValue(config["port"]); ok && port > 0 {
		cfg.Port = port
	}

	cfg.User = firstString(config, "user", "username")
	cfg.Password = firstString(config, "password")
	cfg.Database = firstString(config, "database", "dbname")

	if sslMode := firstString(config, "sslmode", "ssl_mode"); sslMode != "" {
		cfg.SSLMode = sslMode
	}

	return cfg, nil
}

// Addr host:port
func (c *ConnConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func firstString(config map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := config[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64, int, int64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
