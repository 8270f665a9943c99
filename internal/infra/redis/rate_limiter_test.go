package redis

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestStartMember(t *testing.T) {
	now := time.Now().UnixMicro()

	a := startMember(now)
	b := startMember(now)
	if a == b {
		t.Error("two starts in the same microsecond must record distinct members")
	}
	prefix := strconv.FormatInt(now, 10) + "-"
	if !strings.HasPrefix(a, prefix) || !strings.HasPrefix(b, prefix) {
		t.Errorf("members should carry the start timestamp, got %q / %q", a, b)
	}
}

func TestJobStartKey(t *testing.T) {
	if got := JobStartKey("posts"); got != "rate_limit:posts:starts" {
		t.Errorf("unexpected key %q", got)
	}
}
