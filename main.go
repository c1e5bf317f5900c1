package main

import (
	"log"
	"log/slog"

	"github.com/blacklist-hub/blacklist/cmd"
	"github.com/blacklist-hub/blacklist/utils"
	logutil "github.com/blacklist-hub/blacklist/utils/log"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if utils.VersionHash == "unknown" {
		logutil.SetupGlobalLogger(slog.LevelDebug)
		logutil.SetGormLogLevel(gormlogger.Info)
	} else {
		logutil.SetupGlobalLogger(slog.LevelInfo)
		logutil.SetGormLogLevel(gormlogger.Silent)
	}

	log.Printf("Blacklist Hub %s (hash: %s)", utils.CurrentVersion, utils.VersionHash)

	cmd.Execute()
}
