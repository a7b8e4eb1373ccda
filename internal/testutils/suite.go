package testutils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// FakeRadioSuite is the base suite for packages that exercise the fake
// adapter. It provides a per-suite logger (silent unless BLEMSG_TEST_DEBUG
// is set) and a fresh adapter per test.
type FakeRadioSuite struct {
	suite.Suite

	Logger  *logrus.Logger
	Adapter *FakeAdapter
}

func (s *FakeRadioSuite) SetupSuite() {
	s.Logger = NewTestLogger()
}

func (s *FakeRadioSuite) SetupTest() {
	s.Adapter = NewFakeAdapter()
}

// NewTestLogger creates a logger for tests: debug-level to stderr when
// BLEMSG_TEST_DEBUG is set, discarded otherwise.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	if os.Getenv("BLEMSG_TEST_DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetLevel(logrus.PanicLevel)
		logger.SetOutput(io.Discard)
	}
	return logger
}
