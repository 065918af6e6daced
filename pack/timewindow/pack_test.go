package timewindow_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/opsquery/domain/tool"
	"github.com/felixgeelhaar/opsquery/pack/timewindow"
)

func runTool(t *testing.T, name string, ctx context.Context, input string) tool.Result {
	t.Helper()

	p := timewindow.New()
	tl, ok := p.GetTool(name)
	if !ok {
		t.Fatalf("tool %s not found", name)
	}
	if err := tl.InputSchema().Validate(json.RawMessage(input)); err != nil {
		t.Fatalf("Validate(%s) error = %v", input, err)
	}
	res, err := tl.Execute(ctx, json.RawMessage(input))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return res
}

func clockCtx(t *testing.T) context.Context {
	t.Helper()
	loc, err := time.LoadLocation("US/Eastern")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}
	return tool.WithClock(context.Background(), tool.Clock{
		Reference: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		Location:  loc,
	})
}

func decode(t *testing.T, res tool.Result) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(res.Output, &out); err != nil {
		t.Fatalf("unmarshal output %s: %v", res.Output, err)
	}
	return out
}

func TestNew(t *testing.T) {
	t.Parallel()

	p := timewindow.New()
	want := []string{"extract_time_window", "current_time", "shift_time", "convert_timezone", "check_weekday", "format_time"}
	got := p.ToolNames()
	if len(got) != len(want) {
		t.Fatalf("ToolNames() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ToolNames()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	for _, tl := range p.Tools {
		if !tl.Annotations().CanRetry() {
			t.Errorf("%s should be retryable", tl.Name())
		}
	}
}

func TestExtractTimeWindow(t *testing.T) {
	t.Parallel()

	res := runTool(t, "extract_time_window", clockCtx(t), `{"expression":"last hour"}`)
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}

	out := decode(t, res)
	if out["time_start"] != "2026-03-10T09:00:00-04:00" || out["time_end"] != "2026-03-10T10:00:00-04:00" {
		t.Errorf("window = %v..%v", out["time_start"], out["time_end"])
	}
	if out["timezone"] != "US/Eastern" {
		t.Errorf("timezone = %v", out["timezone"])
	}
	if len(res.Metadata) != 2 || res.Metadata["time_start"] != out["time_start"] || res.Metadata["time_end"] != out["time_end"] {
		t.Errorf("Metadata = %v, want time_start and time_end only", res.Metadata)
	}
}

func TestExtractTimeWindow_Overrides(t *testing.T) {
	t.Parallel()

	res := runTool(t, "extract_time_window", context.Background(),
		`{"expression":"yesterday","reference_time":"2026-03-10T14:00:00Z","timezone":"UTC"}`)
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}
	out := decode(t, res)
	if out["time_start"] != "2026-03-09T00:00:00Z" || out["time_end"] != "2026-03-10T00:00:00Z" {
		t.Errorf("window = %v..%v", out["time_start"], out["time_end"])
	}
}

func TestExtractTimeWindow_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ctx   context.Context
		input string
		code  string
	}{
		{"unresolvable", clockCtx(t), `{"expression":"when pigs fly"}`, timewindow.CodeUnresolvable},
		{"inverted", clockCtx(t), `{"expression":"between 2026-03-05 and 2026-03-01"}`, timewindow.CodeInvertedWindow},
		{"bad timezone", clockCtx(t), `{"expression":"today","timezone":"Mars/Olympus"}`, timewindow.CodeInvalidTimezone},
		{"bad reference", clockCtx(t), `{"expression":"today","reference_time":"soon"}`, timewindow.CodeInvalidReference},
		{"no reference", context.Background(), `{"expression":"today"}`, timewindow.CodeMissingReference},
		{"huge rolling amount", clockCtx(t), `{"expression":"last 9999999 hours"}`, timewindow.CodeAmountOutOfRange},
		{"huge ago amount", clockCtx(t), `{"expression":"3000000 hours ago"}`, timewindow.CodeAmountOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := runTool(t, "extract_time_window", tt.ctx, tt.input)
			if !res.Failed() || res.Failure.Code != tt.code {
				t.Errorf("Failure = %v, want code %s", res.Failure, tt.code)
			}
			if len(res.Metadata) != 0 {
				t.Errorf("failed execution contributed metadata %v", res.Metadata)
			}
		})
	}
}

func TestClockTools(t *testing.T) {
	t.Parallel()

	ctx := clockCtx(t)

	tests := []struct {
		name  string
		tool  string
		input string
		key   string
		want  any
	}{
		{"current time", "current_time", `{}`, "time", "2026-03-10T10:00:00-04:00"},
		{"current time weekday", "current_time", `{"timezone":"UTC"}`, "weekday", "Tuesday"},
		{"shift back", "shift_time", `{"time":"2026-03-31T00:00:00Z","amount":-1,"unit":"months"}`, "time", "2026-02-28T00:00:00Z"},
		{"convert", "convert_timezone", `{"time":"2026-03-10T14:00:00Z","timezone":"Asia/Tokyo"}`, "time", "2026-03-10T23:00:00+09:00"},
		{"weekend", "check_weekday", `{"time":"2026-03-14"}`, "is_weekend", true},
		{"weekday", "check_weekday", `{"time":"2026-03-10T14:00:00Z"}`, "weekday", "Tuesday"},
		{"display", "format_time", `{"time":"2026-03-10T10:00:00-04:00","layout":"date"}`, "formatted", "2026-03-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := runTool(t, tt.tool, ctx, tt.input)
			if res.Failed() {
				t.Fatalf("unexpected failure: %v", res.Failure)
			}
			if got := decode(t, res)[tt.key]; got != tt.want {
				t.Errorf("%s = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestFormatTime_Display(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("US/Eastern")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}
	ctx := tool.WithClock(context.Background(), tool.Clock{Location: loc})

	res := runTool(t, "format_time", ctx, `{"time":"2026-03-10T14:00:00Z","layout":"display"}`)
	out := decode(t, res)
	if got := out["formatted"]; got != "Tuesday, March 10, 2026 at 2:00 PM UTC" {
		t.Errorf("formatted = %v", got)
	}
}

func TestShiftTime_SchemaRejectsBadUnit(t *testing.T) {
	t.Parallel()

	tl, _ := timewindow.New().GetTool("shift_time")
	issues := tl.InputSchema().Check(json.RawMessage(`{"time":"2026-03-10T14:00:00Z","amount":1.5,"unit":"fortnights"}`))
	if len(issues) != 2 {
		t.Errorf("Check() = %v, want type mismatch and enum issues", issues)
	}
}

func TestShiftTime_AmountOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"hours", `{"time":"2026-03-10T14:00:00Z","amount":9999999,"unit":"hours"}`},
		{"negative seconds", `{"time":"2026-03-10T14:00:00Z","amount":-99999999999,"unit":"seconds"}`},
		{"years", `{"time":"2026-03-10T14:00:00Z","amount":101,"unit":"years"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := runTool(t, "shift_time", clockCtx(t), tt.input)
			if !res.Failed() || res.Failure.Code != timewindow.CodeAmountOutOfRange {
				t.Errorf("Failure = %v, want code %s", res.Failure, timewindow.CodeAmountOutOfRange)
			}
		})
	}
}
