package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-val-metrics/internal/model"
)

const validPayload = `{
  "map": "ascent",
  "team1_rounds": 13,
  "team2_rounds": "7",
  "winner": "Team 1",
  "players": [
    {"Player": "XPE nixcey", "ACS": 301, "K": 22, "D": 14, "A": 5, "ECON": "68", "FIRST BLOODS": 4, "PLANTS": 2, "DEFUSES": 0},
    {"Player": "XPE Burger", "ACS": "255", "K": 19, "D": 15, "A": 7, "ECON": 55, "FIRST BLOODS": 2, "PLANTS": 1, "DEFUSES": 1},
    {"Player": "Drahmenn", "ACS": 240, "K": 17, "D": 13, "A": 9, "ECON": 60, "FIRST BLOODS": 3, "PLANTS": 0, "DEFUSES": 0},
    {"Player": "Loveleiy", "ACS": 198, "K": 15, "D": 16, "A": 4, "ECON": 47, "FIRST BLOODS": 1, "PLANTS": 3, "DEFUSES": 0},
    {"Player": "Walid", "ACS": 150, "K": 11, "D": 16, "A": 8, "ECON": 40, "FIRST BLOODS": 0, "PLANTS": 0, "DEFUSES": 2},
    {"Player": "XPE Buttercup", "ACS": 230, "K": 16, "D": 17, "A": 3, "ECON": 50, "FIRST BLOODS": 2, "PLANTS": 0, "DEFUSES": 0},
    {"Player": "sawako", "ACS": 210, "K": 15, "D": 18, "A": 6, "ECON": 45, "FIRST BLOODS": 1, "PLANTS": 1, "DEFUSES": 0},
    {"Player": "XPE roro", "ACS": 190, "K": 14, "D": 17, "A": 5, "ECON": 44, "FIRST BLOODS": 1, "PLANTS": 0, "DEFUSES": 1},
    {"Player": "XPE Grass", "ACS": 160, "K": 11, "D": 18, "A": 2, "ECON": "", "FIRST BLOODS": null, "PLANTS": 0, "DEFUSES": 0},
    {"Player": "distressed", "ACS": 120, "K": 8, "D": 19, "A": 4, "ECON": 30, "FIRST BLOODS": 0, "PLANTS": 0, "DEFUSES": 0}
  ]
}`

func TestDecodeValid(t *testing.T) {
	sb, err := Decode([]byte(validPayload))
	require.NoError(t, err)

	assert.Equal(t, "ASCENT", sb.MapName)
	assert.Equal(t, model.SideFirst, sb.Winner)
	assert.Equal(t, 13, sb.FirstRounds)
	assert.Equal(t, 7, sb.SecondRounds)
	require.Len(t, sb.Players, 10)
	assert.Equal(t, 255, sb.Players[1].ACS)
	assert.Equal(t, 68, sb.Players[0].Econ)
	assert.Equal(t, 0, sb.Players[8].Econ)
	assert.Equal(t, 0, sb.Players[8].FirstBloods)
}

func TestDecodeFailures(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"garbage", "Traceback (most recent call last):"},
		{"tool error", `{"error": "cannot open image"}`},
		{"draw", strings.Replace(validPayload, `"Team 1"`, `"Draw"`, 1)},
		{"missing winner", strings.Replace(validPayload, `"winner": "Team 1",`, ``, 1)},
		{"nine players", `{"winner":"Team 1","players":[{},{},{},{},{},{},{},{},{}]}`},
		{"eleven players", `{"winner":"Team 2","players":[{},{},{},{},{},{},{},{},{},{},{}]}`},
		{"bad number", strings.Replace(validPayload, `"K": 22`, `"K": true`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			assert.ErrorIs(t, err, ErrExtraction)
		})
	}
}

func TestDecodeClampsNegativeRoundsAndUnknownMap(t *testing.T) {
	in := strings.NewReplacer(
		`"team1_rounds": 13`, `"team1_rounds": -1`,
		`"map": "ascent"`, `"map": "Unknown"`,
	).Replace(validPayload)

	sb, err := Decode([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, 0, sb.FirstRounds)
	assert.Equal(t, "", sb.MapName)
}

func TestDecodeKeepsOverlongGuestName(t *testing.T) {
	long := strings.Repeat("x", 65)
	sb, err := Decode([]byte(strings.Replace(validPayload, `"distressed"`, `"`+long+`"`, 1)))
	require.NoError(t, err)
	require.Len(t, sb.Players, 10)
	assert.Equal(t, long[:maxNameRunes], sb.Players[9].Name)
}

func TestDecodeNullMap(t *testing.T) {
	sb, err := Decode([]byte(strings.Replace(validPayload, `"ascent"`, `null`, 1)))
	require.NoError(t, err)
	assert.Equal(t, "", sb.MapName)
}

func TestParseLooseInt(t *testing.T) {
	cases := map[string]int{"": 0, " 42 ": 42, "1,234": 1234, "12.6": 13, "abc": 0, "-1": -1}
	for in, want := range cases {
		assert.Equalf(t, want, parseLooseInt(in), "parseLooseInt(%q)", in)
	}
}

// TestHelperProcess is not a real test. It stands in for the extractor when
// re-executed by helperConfig.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("EXTRACT_MODE") {
	case "ok":
		fmt.Fprint(os.Stdout, validPayload)
		os.Exit(0)
	case "tool-error":
		fmt.Fprint(os.Stdout, `{"error": "No image path provided"}`)
		os.Exit(1)
	case "unreadable":
		fmt.Fprint(os.Stdout, `{"error": "cannot identify image file"}`)
		os.Exit(0)
	case "crash":
		fmt.Fprint(os.Stderr, "segfault in tesseract")
		os.Exit(2)
	case "hang":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	}
	os.Exit(3)
}

func helperConfig(mode string) Config {
	return Config{
		Command:         os.Args[0],
		Args:            []string{"-test.run=TestHelperProcess", "--"},
		Env:             []string{"GO_WANT_HELPER_PROCESS=1", "EXTRACT_MODE=" + mode},
		Timeout:         5 * time.Second,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}
}

func TestRunnerExtract(t *testing.T) {
	r := NewRunner(helperConfig("ok"))
	sb, err := r.Extract(context.Background(), "scoreboard.png")
	require.NoError(t, err)
	assert.Len(t, sb.Players, 10)
	assert.Equal(t, "ASCENT", sb.MapName)
}

func TestRunnerToolError(t *testing.T) {
	r := NewRunner(helperConfig("tool-error"))
	_, err := r.Extract(context.Background(), "scoreboard.png")
	require.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "No image path provided")
}

func TestRunnerCrash(t *testing.T) {
	r := NewRunner(helperConfig("crash"))
	_, err := r.Extract(context.Background(), "scoreboard.png")
	require.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "segfault")
}

func TestRunnerTimeout(t *testing.T) {
	cfg := helperConfig("hang")
	cfg.Timeout = 200 * time.Millisecond
	r := NewRunner(cfg)

	start := time.Now()
	_, err := r.Extract(context.Background(), "scoreboard.png")
	require.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunnerBreakerOpens(t *testing.T) {
	r := NewRunner(helperConfig("crash"))
	for i := 0; i < 2; i++ {
		_, err := r.Extract(context.Background(), "scoreboard.png")
		require.ErrorIs(t, err, ErrExtraction)
	}
	_, err := r.Extract(context.Background(), "scoreboard.png")
	require.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestRunnerCancelledCallsKeepBreakerClosed(t *testing.T) {
	cfg := helperConfig("hang")
	r := NewRunner(cfg)
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()
		_, err := r.Extract(ctx, "scoreboard.png")
		require.ErrorIs(t, err, ErrExtraction)
		require.ErrorIs(t, err, context.Canceled)
		cancel()
	}
	assert.Equal(t, gobreaker.StateClosed, r.cb.State())

	cfg.Env = []string{"GO_WANT_HELPER_PROCESS=1", "EXTRACT_MODE=ok"}
	r.cfg = cfg
	sb, err := r.Extract(context.Background(), "scoreboard.png")
	require.NoError(t, err)
	assert.Len(t, sb.Players, 10)
}

func TestRunnerToolReportedErrorDoesNotTripBreaker(t *testing.T) {
	r := NewRunner(helperConfig("unreadable"))
	for i := 0; i < 3; i++ {
		_, err := r.Extract(context.Background(), "scoreboard.png")
		require.ErrorIs(t, err, ErrExtraction)
		assert.Contains(t, err.Error(), "cannot identify image file")
	}
	assert.Equal(t, gobreaker.StateClosed, r.cb.State())
}

func TestRunnerMissingCommand(t *testing.T) {
	r := NewRunner(Config{Command: "/nonexistent/extractor", Timeout: time.Second})
	_, err := r.Extract(context.Background(), "x.png")
	assert.True(t, errors.Is(err, ErrExtraction))
}
