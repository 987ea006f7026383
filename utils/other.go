package utils

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// ANSI escape codes for text colors
const (
	RESET_COLOR      = "\033[0m"
	RED_COLOR        = "\033[31;1m"
	DEEP_GREEN_COLOR = "\u001b[38;5;23m"
	DEEP_GRAY        = "\u001b[38;5;240m"
	DEEP_YELLOW      = "\u001b[38;5;214m"
	GREEN_COLOR      = "\033[32;1m"
	YELLOW_COLOR     = "\033[33m"
	MAGENTA_COLOR    = "\033[38;5;99m"
	CYAN_COLOR       = "\033[36;1m"
	WHITE_COLOR      = "\033[37;1m"
)

const colorField = "color"

var LOGGER = newLogger()

type timeColorFormatter struct{}

func (f *timeColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {

	msgColor, _ := entry.Data[colorField].(string)

	if msgColor == "" {
		msgColor = WHITE_COLOR
	}

	formattedDate := entry.Time.Format("02 January 2006 at 03:04:05 PM")

	line := fmt.Sprintf(DEEP_GREEN_COLOR+"[%s]"+MAGENTA_COLOR+"(pid:%d)"+msgColor+"  %s\n"+RESET_COLOR, formattedDate, os.Getpid(), entry.Message)

	return []byte(line), nil
}

func newLogger() *logrus.Logger {

	logger := logrus.New()
	logger.SetFormatter(&timeColorFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	return logger
}

// SetLogLevel accepts logrus level names; unknown names keep the current level.
func SetLogLevel(level string) {

	if level == "" {
		return
	}

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		LogWithTime(fmt.Sprintf("Unknown log level %q, keeping %s", level, LOGGER.GetLevel()), YELLOW_COLOR)
		return
	}

	LOGGER.SetLevel(parsed)
}

// LogWithTime prints a timestamped coloured line. Red lines are logged at error
// level and yellow ones at warn level, so LOG_LEVEL can silence the chatter.
func LogWithTime(msg, msgColor string) {

	entry := LOGGER.WithField(colorField, msgColor)

	switch msgColor {
	case RED_COLOR:
		entry.Error(msg)
	case YELLOW_COLOR, DEEP_YELLOW:
		entry.Warn(msg)
	case DEEP_GRAY:
		entry.Debug(msg)
	default:
		entry.Info(msg)
	}

}

func Blake3(data []byte) string {

	blake3Hash := blake3.Sum256(data)

	return hex.EncodeToString(blake3Hash[:])

}

func GetUTCTimestampInMilliSeconds() int64 {

	return time.Now().UTC().UnixMilli()

}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	scale := math.Pow(10, float64(places))

	return math.Round(v*scale) / scale

}

// ClampLimit maps non-positive values to def and caps the rest at max.
func ClampLimit(requested, def, max int) int {

	if requested <= 0 {
		return def
	}

	if requested > max {
		return max
	}

	return requested

}
