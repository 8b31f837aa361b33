package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "hello", want: "hello"},
		{name: "timestamp", input: "2026-01-26T14:49:40.7760945Z --- FAIL: TestName", want: "--- FAIL: TestName"},
		{name: "ansi", input: "=== \x1b[31mFAIL\x1b[0m: TestName", want: "=== FAIL: TestName"},
		{name: "act context", input: "[CI/test]   |   File \"a.py\", line 3", want: "  File \"a.py\", line 3"},
		{name: "act marker", input: "[CI/test] ⭐ Run Main go test", want: "⭐ Run Main go test"},
		{name: "carriage return", input: "done\r", want: "done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanLine(tt.input))
		})
	}
}

func TestCleanLog(t *testing.T) {
	input := "[CI/a]   | one\n[CI/a]   | two"
	assert.Equal(t, "one\ntwo", CleanLog(input))
}

func TestContext(t *testing.T) {
	ctx, ok := Context("[CI/build]   | go build ./...")
	assert.True(t, ok)
	assert.Equal(t, "CI/build", ctx)

	_, ok = Context("no prefix here")
	assert.False(t, ok)
}
