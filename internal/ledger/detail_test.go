package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

func TestImportDetailRoundTrip(t *testing.T) {
	lines := []ImportLine{
		{ProductID: 1, Quantity: 10, UnitCost: 2.5, UnitSalePrice: 4},
		{ProductID: 2, Quantity: 3, UnitCost: 1, UnitSalePrice: 1.5},
	}
	raw, err := MarshalImportDetail(lines)
	require.NoError(t, err)

	parsed, err := UnmarshalImportDetail(raw)
	require.NoError(t, err)
	require.Equal(t, lines, parsed)
}

func TestImportDetailAcceptsLegacyBareArray(t *testing.T) {
	raw := []byte(`[{"productId":1,"quantity":5,"unitCost":2,"unitSalePrice":3}]`)

	parsed, err := UnmarshalImportDetail(raw)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Equal(t, int64(1), parsed[0].ProductID)
	require.Equal(t, 5.0, parsed[0].Quantity)
}

func TestImportDetailToleratesUnknownFields(t *testing.T) {
	raw := []byte(`{"version":2,"lines":[{"productId":1,"quantity":5,"unitCost":2,"unitSalePrice":3,"supplierRef":"abc"}],"checksum":"xyz"}`)

	parsed, err := UnmarshalImportDetail(raw)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
}

func TestImportDetailRejectsBadLines(t *testing.T) {
	cases := map[string][]byte{
		"empty":           nil,
		"not json":        []byte(`{{`),
		"no lines":        []byte(`{"version":1,"lines":[]}`),
		"missing product": []byte(`{"version":1,"lines":[{"quantity":5}]}`),
		"zero quantity":   []byte(`{"version":1,"lines":[{"productId":1,"quantity":0}]}`),
		"negative price":  []byte(`{"version":1,"lines":[{"productId":1,"quantity":1,"unitCost":-1}]}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalImportDetail(raw)
			require.Equal(t, shared.KindValidation, shared.KindOf(err))
		})
	}
}

func TestSaleDetailRoundTrip(t *testing.T) {
	zone := int64(4)
	lines := []SaleLine{
		{LotID: 9, BatchCode: "LH000009", ProductID: 1, Quantity: 2, UnitSalePrice: 4, ZoneID: &zone},
	}
	raw, err := MarshalSaleDetail(lines)
	require.NoError(t, err)

	parsed, err := UnmarshalSaleDetail(raw)
	require.NoError(t, err)
	require.Equal(t, lines, parsed)
}

func TestSaleDetailAcceptsLegacyBareArray(t *testing.T) {
	raw := []byte(`[{"lotId":9,"productId":1,"quantity":2,"unitSalePrice":4}]`)

	parsed, err := UnmarshalSaleDetail(raw)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Equal(t, int64(9), parsed[0].LotID)
}

func TestSaleDetailAllowsStubLines(t *testing.T) {
	// A stub line has no lot reference yet; storage accepts it, completion
	// rejects it.
	raw, err := MarshalSaleDetail([]SaleLine{{ProductID: 1, Quantity: 2, UnitSalePrice: 4}})
	require.NoError(t, err)

	parsed, err := UnmarshalSaleDetail(raw)
	require.NoError(t, err)
	require.Equal(t, int64(0), parsed[0].LotID)
}
