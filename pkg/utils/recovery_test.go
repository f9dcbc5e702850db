package utils

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
)

func setupTestLogger(t *testing.T) func() {
	testLogger := zaptest.NewLogger(t)
	originalLogger := logger.Log
	logger.Log = testLogger
	return func() {
		logger.Log = originalLogger
	}
}

func TestSafeGo(t *testing.T) {
	cleanup := setupTestLogger(t)
	defer cleanup()

	// Function runs without panic
	successChan := make(chan bool, 1)
	SafeGo(func() {
		successChan <- true
	}, nil)

	if success := <-successChan; !success {
		t.Error("Expected function to execute successfully")
	}

	// Function panics and the handler receives the panic value
	panicChan := make(chan interface{}, 1)
	SafeGo(func() {
		panic("test panic")
	}, func(r interface{}, stack []byte) {
		panicChan <- r
	})

	if recoveredPanic := <-panicChan; recoveredPanic != "test panic" {
		t.Errorf("Expected panic to be recovered with 'test panic', got %v", recoveredPanic)
	}
}
