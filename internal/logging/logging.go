package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup routes the standard logger to stderr and a rotating logs/app.log
// (1 MB, 5 backups).
func Setup(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "app.log"),
		MaxSize:    1, // MB
		MaxBackups: 5,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotating))
	log.SetFlags(log.LstdFlags)
	return nil
}
