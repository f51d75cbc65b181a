package analyzer

import (
	"github.com/sirupsen/logrus"

	"mapdetect/internal/logger"
)

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, s := range items {
		out[s] = struct{}{}
	}
	return out
}

func logFinding(key, pattern string) *logrus.Entry {
	if key == "" {
		key = "NoUser"
	}
	return logger.WithFields(logger.Fields{"key": key, "pattern": pattern})
}
