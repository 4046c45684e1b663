package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithOutput("debug", "json", &buf)
	logger.WithField("room_code", "r1").Debug("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output: %v (%s)", err, buf.String())
	}
	if entry["room_code"] != "r1" || entry["msg"] != "hello" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewUnknownLevelFallsBack(t *testing.T) {
	logger := newWithOutput("chatty", "text", &bytes.Buffer{})
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
}
