package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTaskStatus(t *testing.T) {
	for _, s := range TaskStatuses {
		got, err := ParseTaskStatus(string(s))
		assert.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseTaskStatus(" RUNNING ")
	assert.NoError(t, err)
	assert.Equal(t, TaskStatusRunning, got)

	_, err = ParseTaskStatus("bogus")
	assert.Error(t, err)
}

func TestTaskStatusIsTerminal(t *testing.T) {
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusRunning.IsTerminal())
	assert.True(t, TaskStatusSucceeded.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.True(t, TaskStatusRevoked.IsTerminal())
}

func TestParseTaskPriority(t *testing.T) {
	tests := []struct {
		in      string
		want    TaskPriority
		wantErr bool
	}{
		{in: "low", want: TaskPriorityLow},
		{in: "NORMAL", want: TaskPriorityNormal},
		{in: "High", want: TaskPriorityHigh},
		{in: "4", want: TaskPriorityCritical},
		{in: "0", wantErr: true},
		{in: "urgent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTaskPriority(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaskOwnedBy(t *testing.T) {
	owner := "u-1"
	task := Task{UserID: &owner}
	assert.True(t, task.OwnedBy("u-1"))
	assert.False(t, task.OwnedBy("u-2"))
	assert.False(t, Task{}.OwnedBy("u-1"))
}
