package confirm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMutating(t *testing.T) {
	tests := []struct {
		command  string
		mutating bool
	}{
		{"CreateBucket", true},
		{"DeleteObject", true},
		{"PutItem", true},
		{"StartExportTask", true},
		{"StopInstances", true},
		{"TerminateInstances", true},
		{"RunInstances", true},
		{"SendMessage", true},
		{"InvokeFunction", true},
		{"UpdateStack", true},
		{"RebootInstances", true},
		{"TagResource", true},
		{"ListBuckets", false},
		{"DescribeInstances", false},
		{"DescribeExportTasks", false},
		{"GetObject", false},
		{"HeadBucket", false},
		{"QueryTable", false},
		{"lookupEvents", false},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.mutating, IsMutating(tt.command))
		})
	}
}

func TestIsMutatingIsCaseInsensitive(t *testing.T) {
	assert.True(t, IsMutating("deleteBucket"))
	assert.True(t, IsMutating("DELETEBUCKET"))
	assert.True(t, IsMutating("Delete"))
}

func TestGateApprovesReadOnlyCommandsWithoutApprover(t *testing.T) {
	gate := NewGate(nil)

	approved, err := gate.Confirm(context.Background(), "cloud", "ListBuckets", nil)
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestGateDeclinesMutatingCommandsWithoutApprover(t *testing.T) {
	gate := NewGate(nil)

	approved, err := gate.Confirm(context.Background(), "cloud", "DeleteBucket", nil)
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestGateConsultsApproverForMutatingCommandsOnly(t *testing.T) {
	var asked []string
	approver := GateFunc(func(ctx context.Context, tool, command string, params map[string]interface{}) (bool, error) {
		asked = append(asked, command)
		return true, nil
	})
	gate := NewGate(approver)

	approved, err := gate.Confirm(context.Background(), "cloud", "ListBuckets", nil)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Empty(t, asked)

	approved, err = gate.Confirm(context.Background(), "cloud", "DeleteBucket", nil)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, []string{"DeleteBucket"}, asked)
}

func TestApproveAllAndDenyAll(t *testing.T) {
	approved, err := NewGate(ApproveAll()).Confirm(context.Background(), "cloud", "DeleteBucket", nil)
	require.NoError(t, err)
	assert.True(t, approved)

	approved, err = NewGate(DenyAll()).Confirm(context.Background(), "cloud", "DeleteBucket", nil)
	require.NoError(t, err)
	assert.False(t, approved)
}
