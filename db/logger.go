package db

import (
	"log"
	"strings"

	"github.com/dcaliste/mkcal/cnf"
)

func logLevel() string {
	if cnf.Config == nil {
		return "info"
	}
	l := strings.ToLower(strings.TrimSpace(cnf.Config["LOG_LEVEL"]))
	if l == "" {
		return "info"
	}
	return l
}

func logDebugf(format string, v ...interface{}) {
	if logLevel() != "debug" {
		return
	}
	log.Printf("[mkcal] "+format, v...)
}

func logInfof(format string, v ...interface{}) {
	l := logLevel()
	if l == "silent" || l == "error" {
		return
	}
	log.Printf("[mkcal] "+format, v...)
}

func logWarnf(format string, v ...interface{}) {
	if logLevel() == "silent" {
		return
	}
	log.Printf("[mkcal][WARN] "+format, v...)
}

func logErrorf(format string, v ...interface{}) {
	log.Printf("[mkcal][ERROR] "+format, v...)
}
