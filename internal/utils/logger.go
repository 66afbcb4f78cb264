package utils

import (
	"fmt"
	"log"
	"os"
	"time"
)

var (
	infoLogger  = log.New(os.Stdout, "", log.LstdFlags)
	errorLogger = log.New(os.Stderr, "", log.LstdFlags)
	debugMode   = os.Getenv("DEBUG") == "true"
)

func init() {
	infoLogger = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	errorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
}

// LogInfo is the access-log sink used by middleware.Logger; recovered panics
// go through LogError from middleware.Recovery.
func LogInfo(message string) {
	if err := infoLogger.Output(2, fmt.Sprintf("[%s] %s", time.Now().Format("2006-01-02 15:04:05"), message)); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] failed to log info: %v\n", err)
	}
}

func LogError(message string) {
	if err := errorLogger.Output(2, fmt.Sprintf("[%s] %s", time.Now().Format("2006-01-02 15:04:05"), message)); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] failed to log error: %v\n", err)
	}
}

// LogFatal logs and exits; reserved for startup failures, never called from
// a request path (that would take the whole server down for one bad job).
func LogFatal(message string) {
	if err := errorLogger.Output(2, fmt.Sprintf("[%s] FATAL: %s", time.Now().Format("2006-01-02 15:04:05"), message)); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] failed to log fatal: %v\n", err)
	}
	os.Exit(1)
}

// LogDebug is gated on DEBUG=true so job-step tracing doesn't flood stdout
// in production.
func LogDebug(message string) {
	if debugMode {
		if err := infoLogger.Output(2, fmt.Sprintf("[%s] DEBUG: %s", time.Now().Format("2006-01-02 15:04:05"), message)); err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] failed to log debug: %v\n", err)
		}
	}
}
