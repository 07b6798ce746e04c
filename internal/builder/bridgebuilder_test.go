package builder

import (
	"bufio"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/cloudbridge/internal/domain/shared"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/config"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/logging"
	"github.com/FreePeak/cloudbridge/pkg/tools"
	"github.com/FreePeak/cloudbridge/pkg/types"
)

func echoInvoker() types.Invoker {
	return types.InvokerFunc(func(ctx context.Context, command string, params map[string]interface{}) (string, error) {
		return command, nil
	})
}

func inMemorySettings() config.Settings {
	s := config.DefaultSettings()
	s.Enabled = false
	return s
}

func TestBuilderProducesWorkingManager(t *testing.T) {
	mgr := NewBridgeBuilder().
		WithName("test-bridge").
		WithVersion("9.9.9").
		WithStore(config.NewStore(inMemorySettings())).
		WithLogger(logging.NewNop()).
		AddTool(*tools.NewTool("s3",
			tools.WithDescription("Amazon S3 operations"),
			tools.WithString("command", tools.Required()),
		), echoInvoker()).
		Build()
	t.Cleanup(mgr.StopAll)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	local, err := mgr.StartSession().Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, local)
	defer local.Close()

	require.NoError(t, local.Client().SetDeadline(time.Now().Add(5*time.Second)))
	_, err = local.Client().Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n"))
	require.NoError(t, err)

	raw, err := bufio.NewReader(local.Client()).ReadBytes('\n')
	require.NoError(t, err)

	var response struct {
		Result shared.InitializeResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))
	assert.Equal(t, "test-bridge", response.Result.ServerInfo.Name)
	assert.Equal(t, "9.9.9", response.Result.ServerInfo.Version)
}

func TestAddToolRejectsBrokenSchema(t *testing.T) {
	builder := NewBridgeBuilder().
		WithStore(config.NewStore(inMemorySettings())).
		WithLogger(logging.NewNop()).
		AddTool(types.Tool{
			Name:        "broken",
			Description: "schema does not compile",
			InputSchema: map[string]interface{}{"type": 42},
		}, echoInvoker())

	assert.Empty(t, builder.registry)
}

func TestAddToolKeepsValidTools(t *testing.T) {
	builder := NewBridgeBuilder().
		WithStore(config.NewStore(inMemorySettings())).
		WithLogger(logging.NewNop()).
		AddTool(*tools.NewTool("ec2", tools.WithDescription("EC2 operations")), echoInvoker())

	require.Contains(t, builder.registry, "ec2")
	assert.Equal(t, "EC2 operations", builder.registry["ec2"].Tool.Description)
}
