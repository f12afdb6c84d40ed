package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/desk"
	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/migration"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"start", "migrate", "seed", "worker", "desk"} {
		assert.True(t, names[want], "missing %s command", want)
	}

	deskCmd, _, err := root.Find([]string{"desk", "export"})
	require.NoError(t, err)
	assert.NotNil(t, deskCmd.Flags().Lookup("output"))
	assert.NotNil(t, deskCmd.Flags().Lookup("ids"))
	assert.NotNil(t, deskCmd.Flags().Lookup("from"))

	statusCmd, _, err := root.Find([]string{"migrate", "status"})
	require.NoError(t, err)
	assert.Equal(t, "status", statusCmd.Name())

	runCmd, _, err := root.Find([]string{"worker", "run"})
	require.NoError(t, err)
	assert.Equal(t, "run", runCmd.Name())

	startCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "start", startCmd.Name())
}

func TestRootCommand_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desk.env")
	require.NoError(t, os.WriteFile(path, []byte("ORDERDESK_CLI_TEST_MARKER=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ORDERDESK_CLI_TEST_MARKER") })

	root := NewRootCommand()
	require.NoError(t, root.ParseFlags([]string{"--env-file", path}))
	require.NoError(t, root.PersistentPreRunE(root, nil))
	assert.Equal(t, "loaded", os.Getenv("ORDERDESK_CLI_TEST_MARKER"))
}

func TestRootCommand_MissingEnvFile(t *testing.T) {
	root := NewRootCommand()
	require.NoError(t, root.ParseFlags([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}))
	err := root.PersistentPreRunE(root, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env file")
}

func TestPrintMigrations(t *testing.T) {
	applied := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	require.NoError(t, printMigrations(&out, []migration.Status{
		{Version: 1, File: "00001_create_orders.sql", Applied: true, AppliedAt: applied},
		{Version: 2, File: "00002_order_indexes.sql"},
	}))

	text := out.String()
	assert.Contains(t, text, "VERSION")
	assert.Contains(t, text, "00001_create_orders.sql")
	assert.Contains(t, text, "2024-03-01T09:00:00Z")
	assert.Contains(t, text, "pending")
}

func TestPrintStats(t *testing.T) {
	ict := time.FixedZone("ICT", 7*60*60)
	view := desk.View{
		Page:       1,
		PageSize:   10,
		TotalCount: 12,
		TotalPages: 2,
		Criteria:   desk.Criteria{Status: "Paid"},
		PageStatistics: dto.Statistics{
			TotalOrders:  3,
			PaidOrders:   1,
			TotalRevenue: 1234567,
			PaymentRate:  33,
		},
		Matched: 1,
		Orders: []dto.Order{{
			ID:          "a1b2c3d4-e5f6",
			Status:      "Paid",
			BuyerName:   "Nguyễn Văn An",
			TotalAmount: 1234567,
			CreatedAt:   dto.ParseTimestamp("2024-01-01T08:30:00"),
		}},
	}

	var out bytes.Buffer
	require.NoError(t, printStats(&out, view, ict))

	text := out.String()
	assert.Contains(t, text, "1/2 (12 orders in total)")
	assert.Contains(t, text, "1.234.567 VND")
	assert.Contains(t, text, "1 of 3 orders match the filters")
	assert.Contains(t, text, "A1B2C3D4")
	assert.Contains(t, text, "Đã thanh toán")
	assert.Contains(t, text, "01/01/2024 08:30")
}
