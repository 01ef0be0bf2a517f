package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// EnvInstanceID задаёт instance_id реплики, если его нет в конфиге.
const EnvInstanceID = "HUDDLE_INSTANCE_ID"

// instanceID: явное значение, HUDDLE_INSTANCE_ID, POD_NAME, иначе hostname
// с коротким суффиксом, чтобы перезапуски на одном хосте не склеивались.
func instanceID(explicit string) string {
	for _, v := range []string{explicit, os.Getenv(EnvInstanceID), os.Getenv("POD_NAME")} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	hn, err := os.Hostname()
	if err != nil || hn == "" {
		hn = "huddle"
	}
	return hn + "-" + uuid.NewString()[:8]
}

// commonAttr — поля каждой записи сервиса.
func commonAttr(cfg Config) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("instance_id", cfg.InstanceID),
		slog.Int("pid", os.Getpid()),
	}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	return attrs
}
