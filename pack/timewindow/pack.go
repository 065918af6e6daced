// Package timewindow provides deterministic time tools: resolving free-text
// temporal expressions into windows and basic clock arithmetic.
package timewindow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Embedded zone database so timezone names resolve on minimal images.
	_ "time/tzdata"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/domain/pack"
	"github.com/felixgeelhaar/opsquery/domain/tool"
)

// Failure codes reported by the pack's tools.
const (
	CodeUnresolvable      = "unresolvable_expression"
	CodeInvertedWindow    = "inverted_window"
	CodeAmountOutOfRange  = "amount_out_of_range"
	CodeMissingReference  = "missing_reference_time"
	CodeInvalidReference  = "invalid_reference_time"
	CodeInvalidTime       = "invalid_time"
	CodeInvalidTimezone   = "invalid_timezone"
	CodeInvalidUnit       = "invalid_unit"
	CodeUnsupportedLayout = "unsupported_layout"
)

// PackOptions configures the time window pack.
type PackOptions struct {
	// Timeout for a single tool execution.
	Timeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() PackOptions {
	return PackOptions{
		Timeout: 2 * time.Second,
	}
}

// WithTimeout sets the per-execution timeout.
func WithTimeout(d time.Duration) func(*PackOptions) {
	return func(o *PackOptions) {
		o.Timeout = d
	}
}

// New creates the time window pack.
func New(opts ...func(*PackOptions)) *pack.Pack {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return pack.NewBuilder("timewindow").
		WithDescription("Time window resolution and clock arithmetic").
		WithVersion("1.0.0").
		AddTools(
			extractTimeWindowTool(options),
			currentTimeTool(options),
			shiftTimeTool(options),
			convertTimezoneTool(options),
			checkWeekdayTool(options),
			formatTimeTool(options),
		).
		MustBuild()
}

type extractInput struct {
	Expression    string `json:"expression"`
	ReferenceTime string `json:"reference_time,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

type windowOutput struct {
	TimeStart  string `json:"time_start"`
	TimeEnd    string `json:"time_end"`
	Timezone   string `json:"timezone"`
	Expression string `json:"expression"`
	Resolution string `json:"resolution"`
}

func extractTimeWindowTool(opts PackOptions) tool.Tool {
	return tool.NewBuilder("extract_time_window").
		WithDescription("Resolve a natural-language time expression such as 'last hour', " +
			"'yesterday', 'since monday' or 'between 2026-03-01 and 2026-03-03' into an " +
			"absolute start and end time.").
		WithFields(
			tool.Field{Name: "expression", Type: tool.TypeString, Required: true,
				Description: "The time expression exactly as the user phrased it"},
			tool.Field{Name: "reference_time", Type: tool.TypeString,
				Description: "RFC3339 instant to resolve against; defaults to the current time"},
			tool.Field{Name: "timezone", Type: tool.TypeString,
				Description: "IANA timezone name, e.g. US/Eastern"},
		).
		WithMetadataFields(agent.FieldTimeStart, agent.FieldTimeEnd).
		WithAnnotations(tool.PureAnnotations()).
		WithTimeout(opts.Timeout).
		WithTags("time").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in extractInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("decode input: %w", err)
			}

			loc, fail := location(ctx, in.Timezone)
			if fail != nil {
				return *fail, nil
			}
			ref, fail := reference(ctx, in.ReferenceTime, loc)
			if fail != nil {
				return *fail, nil
			}

			w, err := Resolve(in.Expression, ref, loc)
			switch {
			case errors.Is(err, ErrInvertedWindow):
				return tool.Fail(CodeInvertedWindow, "%v", err), nil
			case errors.Is(err, ErrAmountOutOfRange):
				return tool.Fail(CodeAmountOutOfRange, "%v", err), nil
			case err != nil:
				return tool.Fail(CodeUnresolvable, "%v", err), nil
			}

			out := windowOutput{
				TimeStart:  w.Start.In(loc).Format(time.RFC3339),
				TimeEnd:    w.End.In(loc).Format(time.RFC3339),
				Timezone:   loc.String(),
				Expression: in.Expression,
				Resolution: string(w.Resolution),
			}
			res, err := tool.JSONResult(out)
			if err != nil {
				return tool.Result{}, err
			}
			return res.
				WithMetadata(agent.FieldTimeStart, out.TimeStart).
				WithMetadata(agent.FieldTimeEnd, out.TimeEnd), nil
		}).
		MustBuild()
}

type currentTimeInput struct {
	Timezone string `json:"timezone,omitempty"`
}

type instantOutput struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	Weekday  string `json:"weekday"`
	Unix     int64  `json:"unix"`
}

func newInstant(t time.Time) instantOutput {
	return instantOutput{
		Time:     t.Format(time.RFC3339),
		Timezone: t.Location().String(),
		Weekday:  t.Weekday().String(),
		Unix:     t.Unix(),
	}
}

func currentTimeTool(opts PackOptions) tool.Tool {
	return tool.NewBuilder("current_time").
		WithDescription("Return the current time of the run in the given timezone.").
		WithFields(
			tool.Field{Name: "timezone", Type: tool.TypeString,
				Description: "IANA timezone name; defaults to the configured timezone"},
		).
		WithAnnotations(tool.PureAnnotations()).
		WithTimeout(opts.Timeout).
		WithTags("time").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in currentTimeInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("decode input: %w", err)
			}
			loc, fail := location(ctx, in.Timezone)
			if fail != nil {
				return *fail, nil
			}
			ref, fail := reference(ctx, "", loc)
			if fail != nil {
				return *fail, nil
			}
			return tool.JSONResult(newInstant(ref))
		}).
		MustBuild()
}

type shiftInput struct {
	Time   string `json:"time"`
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

func shiftTimeTool(opts PackOptions) tool.Tool {
	return tool.NewBuilder("shift_time").
		WithDescription("Add a signed amount of a unit to an RFC3339 time. " +
			"Month and year shifts clamp to the end of the target month.").
		WithFields(
			tool.Field{Name: "time", Type: tool.TypeString, Required: true,
				Description: "RFC3339 time to shift"},
			tool.Field{Name: "amount", Type: tool.TypeInteger, Required: true,
				Description: "Signed number of units; negative moves back in time"},
			tool.Field{Name: "unit", Type: tool.TypeString, Required: true,
				Enum: Units(), Description: "Unit of the shift"},
		).
		WithAnnotations(tool.PureAnnotations()).
		WithTimeout(opts.Timeout).
		WithTags("time").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in shiftInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("decode input: %w", err)
			}
			loc, _ := location(ctx, "")
			t, _, ok := ParseInstant(in.Time, loc)
			if !ok {
				return tool.Fail(CodeInvalidTime, "cannot parse time %q", in.Time), nil
			}
			unit, ok := ParseUnit(in.Unit)
			if !ok {
				return tool.Fail(CodeInvalidUnit, "unknown unit %q", in.Unit), nil
			}
			if err := CheckAmount(in.Amount, unit); err != nil {
				return tool.Fail(CodeAmountOutOfRange, "%v", err), nil
			}
			return tool.JSONResult(newInstant(Shift(t, in.Amount, unit)))
		}).
		MustBuild()
}

type convertInput struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

func convertTimezoneTool(opts PackOptions) tool.Tool {
	return tool.NewBuilder("convert_timezone").
		WithDescription("Express an RFC3339 time in another IANA timezone.").
		WithFields(
			tool.Field{Name: "time", Type: tool.TypeString, Required: true,
				Description: "RFC3339 time to convert"},
			tool.Field{Name: "timezone", Type: tool.TypeString, Required: true,
				Description: "Target IANA timezone name"},
		).
		WithMetadataFields(agent.FieldTimezone).
		WithAnnotations(tool.PureAnnotations()).
		WithTimeout(opts.Timeout).
		WithTags("time").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in convertInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("decode input: %w", err)
			}
			loc, err := time.LoadLocation(in.Timezone)
			if err != nil || in.Timezone == "" {
				return tool.Fail(CodeInvalidTimezone, "unknown timezone %q", in.Timezone), nil
			}
			src, _ := location(ctx, "")
			t, _, ok := ParseInstant(in.Time, src)
			if !ok {
				return tool.Fail(CodeInvalidTime, "cannot parse time %q", in.Time), nil
			}
			res, err := tool.JSONResult(newInstant(t.In(loc)))
			if err != nil {
				return tool.Result{}, err
			}
			return res.WithMetadata(agent.FieldTimezone, loc.String()), nil
		}).
		MustBuild()
}

type weekdayInput struct {
	Time string `json:"time"`
}

type weekdayOutput struct {
	Time      string `json:"time"`
	Weekday   string `json:"weekday"`
	IsWeekend bool   `json:"is_weekend"`
}

func checkWeekdayTool(opts PackOptions) tool.Tool {
	return tool.NewBuilder("check_weekday").
		WithDescription("Report the weekday of a time or date and whether it falls on a weekend.").
		WithFields(
			tool.Field{Name: "time", Type: tool.TypeString, Required: true,
				Description: "RFC3339 time or YYYY-MM-DD date"},
		).
		WithAnnotations(tool.PureAnnotations()).
		WithTimeout(opts.Timeout).
		WithTags("time").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in weekdayInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("decode input: %w", err)
			}
			loc, _ := location(ctx, "")
			t, _, ok := ParseInstant(in.Time, loc)
			if !ok {
				return tool.Fail(CodeInvalidTime, "cannot parse time %q", in.Time), nil
			}
			wd := t.Weekday()
			return tool.JSONResult(weekdayOutput{
				Time:      t.Format(time.RFC3339),
				Weekday:   wd.String(),
				IsWeekend: wd == time.Saturday || wd == time.Sunday,
			})
		}).
		MustBuild()
}

var formatLayouts = map[string]string{
	"rfc3339":  time.RFC3339,
	"date":     "2006-01-02",
	"datetime": "2006-01-02 15:04:05",
	"kitchen":  time.Kitchen,
	"display":  "Monday, January 2, 2006 at 3:04 PM MST",
}

type formatInput struct {
	Time   string `json:"time"`
	Layout string `json:"layout"`
}

type formatOutput struct {
	Formatted string `json:"formatted"`
	Layout    string `json:"layout"`
}

func formatTimeTool(opts PackOptions) tool.Tool {
	return tool.NewBuilder("format_time").
		WithDescription("Render an RFC3339 time in a named layout for display.").
		WithFields(
			tool.Field{Name: "time", Type: tool.TypeString, Required: true,
				Description: "RFC3339 time to format"},
			tool.Field{Name: "layout", Type: tool.TypeString, Required: true,
				Enum:        []string{"rfc3339", "date", "datetime", "kitchen", "display"},
				Description: "Output layout"},
		).
		WithAnnotations(tool.PureAnnotations()).
		WithTimeout(opts.Timeout).
		WithTags("time").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in formatInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("decode input: %w", err)
			}
			layout, ok := formatLayouts[in.Layout]
			if !ok {
				return tool.Fail(CodeUnsupportedLayout, "unknown layout %q", in.Layout), nil
			}
			loc, _ := location(ctx, "")
			t, _, ok := ParseInstant(in.Time, loc)
			if !ok {
				return tool.Fail(CodeInvalidTime, "cannot parse time %q", in.Time), nil
			}
			return tool.JSONResult(formatOutput{Formatted: t.Format(layout), Layout: in.Layout})
		}).
		MustBuild()
}

// location picks the explicit timezone, then the run clock's, then UTC.
func location(ctx context.Context, name string) (*time.Location, *tool.Result) {
	if name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			fail := tool.Fail(CodeInvalidTimezone, "unknown timezone %q", name)
			return nil, &fail
		}
		return loc, nil
	}
	if c, ok := tool.ClockFrom(ctx); ok && c.Location != nil {
		return c.Location, nil
	}
	return time.UTC, nil
}

// reference picks the explicit reference time, then the run clock's.
func reference(ctx context.Context, raw string, loc *time.Location) (time.Time, *tool.Result) {
	if raw != "" {
		t, _, ok := ParseInstant(raw, loc)
		if !ok {
			fail := tool.Fail(CodeInvalidReference, "cannot parse reference time %q", raw)
			return time.Time{}, &fail
		}
		return t, nil
	}
	if c, ok := tool.ClockFrom(ctx); ok && !c.Reference.IsZero() {
		return c.Reference.In(loc), nil
	}
	fail := tool.Fail(CodeMissingReference, "no reference time available")
	return time.Time{}, &fail
}
