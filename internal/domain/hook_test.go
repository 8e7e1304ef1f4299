package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookKeepPolicy_Keep(t *testing.T) {
	tests := []struct {
		policy HookKeepPolicy
		state  JobState
		want   bool
	}{
		{KeepNever, JobFailed, false},
		{KeepFailed, JobFailed, true},
		{KeepFailed, JobCompleted, false},
		{KeepFailed, JobCancelled, false},
		{KeepAlways, JobCompleted, true},
		{"", JobFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy)+"/"+string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Keep(tt.state))
		})
	}
}

func TestOrphans(t *testing.T) {
	infos := []HookInfo{{JobID: "a"}, {JobID: "b"}, {JobID: ""}}
	got := Orphans(infos, map[string]bool{"a": true})
	assert.Equal(t, []HookInfo{{JobID: "b"}, {JobID: ""}}, got)
	assert.Empty(t, Orphans(nil, nil))
}
