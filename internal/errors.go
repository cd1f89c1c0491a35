package internal

import "errors"

// Indexing
var (
	ErrIndexNotFound   = errors.New("path does not exist")
	ErrIndexPermission = errors.New("insufficient permissions")
	ErrIndexSymlink    = errors.New("path is a symlink")
	ErrIndexEntries    = errors.New("failed to read directory entries")
	ErrIndexIrregular  = errors.New("not a regular file")
)

// Remote / update
var (
	ErrRemoteOffline        = errors.New("failed to fetch remote resource")
	ErrRemoteSerialize      = errors.New("failed to parse remote release")
	ErrRemoteClientBuild    = errors.New("failed to build remote request")
	ErrRemoteLocalIO        = errors.New("failed to read local rule cache")
	ErrRemoteTime           = errors.New("failed to parse timestamp")
	ErrRemoteAlreadyUpdated = errors.New("rules already up to date")
)

// Build
var (
	ErrBuilderArchive       = errors.New("failed to read rule bundle")
	ErrBuilderIO            = errors.New("rule build filesystem failure")
	ErrBuilderSerialization = errors.New("failed to serialize built rules")
	ErrBuilderNoRules       = errors.New("rule bundle contained no compilable rules")
	ErrBuilderCompile       = errors.New("failed to compile rule bundle")
)

// Scan
var (
	ErrScannerNoRules         = errors.New("no rules available even after an attempted update")
	ErrScannerRuleLoad        = errors.New("failed to open rule file")
	ErrScannerRuleDeserialize = errors.New("failed to deserialize rules")
	ErrScannerFileNotFound    = errors.New("file to be scanned is no longer present")
	ErrScannerScan            = errors.New("failed to scan file")
	ErrScannerIO              = errors.New("failed to get metadata for file")
	ErrScannerUnsupported     = errors.New("unsupported container")
	ErrScannerPool            = errors.New("failed to create worker pool")
	ErrScannerSubmit          = errors.New("failed to submit scan job")
)

// Coordination
var (
	ErrWatchdogSend = errors.New("failed to send update to watchdog")
	ErrWatchdogRecv = errors.New("watchdog failed to receive update")
	ErrLogIO        = errors.New("failed to create scan log")
	ErrLogWrite     = errors.New("failed to write scan log")
)
