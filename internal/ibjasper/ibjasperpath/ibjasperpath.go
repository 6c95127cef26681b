// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjasperpath derives file paths from the ibjasper base directory.
// All directory layout is defined here so callers don't duplicate
// path construction logic.
//
// The base directory (--dir flag) contains:
//
//	ibjasper.yaml           Config file
//	activity_statements/    User-managed IBKR Activity Statement CSVs
//	cache/market.db         Blow-away-safe market data cache
package ibjasperpath

import "path/filepath"

// ConfigFileName is the well-known config file name within the base directory.
const ConfigFileName = "ibjasper.yaml"

// ConfigFilePath returns the path to the config file within the base directory.
func ConfigFilePath(dirPath string) string {
	return filepath.Join(dirPath, ConfigFileName)
}

// ActivityStatementsDirPath returns the directory for Activity Statement CSVs.
func ActivityStatementsDirPath(dirPath string) string {
	return filepath.Join(dirPath, "activity_statements")
}

// CacheDirPath returns the directory for cached data.
func CacheDirPath(dirPath string) string {
	return filepath.Join(dirPath, "cache")
}

// MarketDataFilePath returns the SQLite market data cache file.
func MarketDataFilePath(dirPath string) string {
	return filepath.Join(dirPath, "cache", "market.db")
}
