package mempool_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/mempool"
	"github.com/mpukernel/memcore/memutils"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func defaultTable(t *testing.T) *mempool.Table {
	table, err := mempool.NewDefaultTable(mempool.DefaultSections())
	require.NoError(t, err)
	return table
}

func TestDefaultTableLayout(t *testing.T) {
	table := defaultTable(t)
	require.Equal(t, 11, table.Len())

	for name, id := range map[string]mempool.ID{
		"KTEXT":   mempool.KernelText,
		"UTEXT":   mempool.UserText,
		"UBSS":    mempool.UserBSS,
		"MEM0":    mempool.Memory0,
		"KBITMAP": mempool.KernelBitmap,
		"AHBDEV":  mempool.AHBDevices,
	} {
		found, ok := table.ByName(name)
		require.True(t, ok, name)
		require.Equal(t, id, found, name)
		require.Equal(t, name, table.Get(id).Name)
	}

	_, ok := table.ByName("NOPE")
	require.False(t, ok)

	require.Nil(t, table.Get(mempool.Unknown))
	require.Nil(t, table.Get(mempool.ID(table.Len())))

	mem0 := table.Get(mempool.Memory0)
	require.Equal(t, table.Get(mempool.UserBSS).End, mem0.Start)
	require.Equal(t, mempool.SRAMEnd, mem0.End)
}

var findCases = map[string]struct {
	Addr     uint32
	Length   uint32
	Expected mempool.ID
	NotFound bool
}{
	"Kernel Text Start": {Addr: 0, Length: 4, Expected: mempool.KernelText},
	"User Text Whole":   {Addr: 0x4000, Length: 0x4000, Expected: mempool.UserText},
	"Straddles Pools":   {Addr: 0x3ff0, Length: 0x20, NotFound: true},
	"Device Window":     {Addr: 0x40080000, Length: 0x100, Expected: mempool.APBDevices},
	"Unmapped Hole":     {Addr: 0x30000000, Length: 1, NotFound: true},
	"Wraps Address Space": {
		Addr: 0xfffffff0, Length: 0x20, NotFound: true,
	},
	"Zero Length At End": {Addr: 0x10008000, Length: 0, Expected: mempool.Memory0},
}

func TestFindByAddress(t *testing.T) {
	table := defaultTable(t)

	for name, tc := range findCases {
		t.Run(name, func(t *testing.T) {
			id, err := table.FindByAddress(tc.Addr, tc.Length)
			if tc.NotFound {
				require.True(t, errors.Is(err, memutils.ErrNotFound))
				require.Equal(t, mempool.Unknown, id)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.Expected, id)
		})
	}
}

func TestValidateUserBuffer(t *testing.T) {
	table := defaultTable(t)

	id, err := table.ValidateUserBuffer(0x10002000, mempool.UTCBSize)
	require.NoError(t, err)
	require.Equal(t, mempool.Memory0, id)

	_, err = table.ValidateUserBuffer(0x10000400, mempool.UTCBSize)
	require.True(t, errors.Is(err, memutils.ErrPermission))

	_, err = table.ValidateUserBuffer(0x30000000, mempool.UTCBSize)
	require.True(t, errors.Is(err, memutils.ErrNotFound))
}

func TestNewTableRejectsBadPools(t *testing.T) {
	_, err := mempool.NewTable([]mempool.Pool{
		{Name: "A", Start: 0, End: 0x100},
		{Name: "A", Start: 0x100, End: 0x200},
	})
	require.True(t, errors.Is(err, memutils.ErrInvalidConfig))

	_, err = mempool.NewTable([]mempool.Pool{
		{Name: "BACKWARDS", Start: 0x200, End: 0x100},
	})
	require.True(t, errors.Is(err, memutils.ErrInvalidConfig))
}

func TestPoolProperties(t *testing.T) {
	table := defaultTable(t)

	require.Equal(t, "r-x --- N", table.Get(mempool.KernelText).Properties())
	require.Equal(t, "--- r-x M", table.Get(mempool.UserText).Properties())
	require.Equal(t, "--- rw- S", table.Get(mempool.Memory0).Properties())
	require.Equal(t, "--- rw- A", table.Get(mempool.Memory1).Properties())
	require.Equal(t, "--- rw- D", table.Get(mempool.APBDevices).Properties())
	require.Contains(t, table.Get(mempool.UserText).String(), "UTEXT")
}

func TestTableJSON(t *testing.T) {
	table := defaultTable(t)

	writer := jwriter.NewWriter()
	table.WriteJSON(&writer)
	require.NoError(t, writer.Error())

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(writer.Bytes(), &decoded))
	require.Len(t, decoded, table.Len())
	require.Equal(t, "UTEXT", decoded[mempool.UserText]["Name"])
	require.Equal(t, true, decoded[mempool.UserText]["MapAlways"])
	require.Equal(t, "ClassDevices", decoded[mempool.AHBDevices]["Class"])
}

func TestDebugLogPools(t *testing.T) {
	table := defaultTable(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	table.DebugLogPools(logger)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, table.Len())
	require.Contains(t, string(lines[0]), `"name":"KTEXT"`)
	require.Contains(t, string(lines[0]), `"flags":"r-x --- N"`)
}
