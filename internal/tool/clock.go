package tool

import (
	"context"
	"strings"
	"time"
)

// Clock tools answer time and date questions locally, without a model
// round trip to anything external. now is injectable for tests.

func noParams() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

type CurrentTimeTool struct {
	now func() time.Time
}

func NewCurrentTimeTool() *CurrentTimeTool {
	return &CurrentTimeTool{now: time.Now}
}

func (t *CurrentTimeTool) Name() string { return "get_current_time" }
func (t *CurrentTimeTool) Description() string {
	return "Get the current local time in 12-hour format."
}
func (t *CurrentTimeTool) Parameters() map[string]any { return noParams() }

func (t *CurrentTimeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return strings.TrimPrefix(t.now().Format("03:04 PM"), "0"), nil
}

type CurrentDateTool struct {
	now func() time.Time
}

func NewCurrentDateTool() *CurrentDateTool {
	return &CurrentDateTool{now: time.Now}
}

func (t *CurrentDateTool) Name() string { return "get_current_date" }
func (t *CurrentDateTool) Description() string {
	return "Get today's date including the weekday."
}
func (t *CurrentDateTool) Parameters() map[string]any { return noParams() }

func (t *CurrentDateTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.now().Format("Monday, January 2, 2006"), nil
}

type CurrentDateTimeTool struct {
	now func() time.Time
}

func NewCurrentDateTimeTool() *CurrentDateTimeTool {
	return &CurrentDateTimeTool{now: time.Now}
}

func (t *CurrentDateTimeTool) Name() string { return "get_current_datetime" }
func (t *CurrentDateTimeTool) Description() string {
	return "Get the current date and time together."
}
func (t *CurrentDateTimeTool) Parameters() map[string]any { return noParams() }

func (t *CurrentDateTimeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	n := t.now()
	return n.Format("Monday, January 2, 2006") + " at " +
		strings.TrimPrefix(n.Format("03:04 PM"), "0"), nil
}
