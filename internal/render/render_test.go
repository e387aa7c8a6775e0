package render

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() Data {
	return Data{
		Reference: "42",
		Recipient: "Acme <Trading>",
		Date:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Remark:    "Delivery CIF Jebel Ali",
		Lines: []Line{
			{Position: 1, ProductName: "Ball valve", Specification: "DN50, PN16", Site: "North", PRGroup: "PR-1",
				Quantity: decimal.NewFromInt(10), Unit: "pcs", Price: decimal.RequireFromString("12.50")},
			{Position: 2, ProductName: "Gasket", Specification: "EPDM", Site: "North", PRGroup: "PR-1",
				Quantity: decimal.RequireFromString("2.5"), Unit: "kg", Price: decimal.RequireFromString("4")},
		},
	}
}

func TestNew_LoadsBuiltInCatalogue(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_offer", "supplier_inquiry"}, r.Keys())
}

func TestRender_CustomerOffer(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	b, err := r.Render("customer_offer", sampleData())
	require.NoError(t, err)

	assert.Equal(t, "Offer 42 from Trade ERP Exports", b.Subject)
	assert.True(t, decimal.RequireFromString("135").Equal(b.Total))
	require.Len(t, b.Documents, 2)
	assert.Equal(t, "offer-42.csv", b.Documents[0].Name)
	assert.Equal(t, ContentTypeCSV, b.Documents[0].ContentType)
	assert.Equal(t, "offer-42.html", b.Documents[1].Name)

	reader := csv.NewReader(bytes.NewReader(b.Documents[0].Data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "Unit Price", records[0][7])
	assert.Equal(t, []string{"1", "North", "PR-1", "Ball valve", "DN50, PN16", "10", "pcs", "12.50", "125.00"}, records[1])
	assert.Equal(t, "10.00", records[2][8])
	assert.Equal(t, "Total", records[3][0])
	assert.Equal(t, "135.00", records[3][8])
	assert.Equal(t, []string{"Remark", "Delivery CIF Jebel Ali"}, records[4])
}

func TestRender_SupplierInquiryHasNoPrices(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	b, err := r.Render("supplier_inquiry", sampleData())
	require.NoError(t, err)

	sheet := string(b.Documents[0].Data)
	assert.Equal(t, "inquiry-42.csv", b.Documents[0].Name)
	assert.NotContains(t, sheet, "12.50")
	assert.NotContains(t, sheet, "Total")
	assert.Contains(t, sheet, "Ball valve")
}

func TestRender_LetterEscapesInput(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	data := sampleData()
	data.Message = "<script>alert(1)</script>"
	b, err := r.Render("customer_offer", data)
	require.NoError(t, err)

	assert.Contains(t, b.Body, "Acme &lt;Trading&gt;")
	assert.NotContains(t, b.Body, "<script>")
	assert.Contains(t, b.Body, "05 Mar 2024")
	assert.Contains(t, b.Body, "Total: 135.00")
	assert.Equal(t, b.Body, string(b.Documents[1].Data))
}

func TestRender_UnknownTemplate(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	_, err = r.Render("purchase_order", sampleData())
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestNewFromYAML_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "company: X\n", "empty"},
		{"no columns", "templates:\n  a:\n    title: A\n", "no columns"},
		{"unknown field", "templates:\n  a:\n    columns:\n      - {header: H, field: colour}\n", "unknown field"},
		{"bad subject", "templates:\n  a:\n    subject: \"{{.Broken\"\n    columns:\n      - {header: H, field: unit}\n", "subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFromYAML([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestRender_EmptyReferenceUsesBareFileName(t *testing.T) {
	r, err := NewFromYAML([]byte("templates:\n  memo:\n    columns:\n      - {header: Item, field: product_name}\n"))
	require.NoError(t, err)

	b, err := r.Render("memo", Data{Lines: []Line{{ProductName: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "memo.csv", b.Documents[0].Name)
}
