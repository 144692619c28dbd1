package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOdooValuesTolerateFalse(t *testing.T) {
	var rec struct {
		Name    OdooString `json:"name"`
		Note    OdooString `json:"note"`
		Partner Many2one   `json:"partner_id"`
		Team    Many2one   `json:"team_id"`
		Product Many2one   `json:"product_id"`
	}
	raw := `{"name":"S00042","note":false,"partner_id":[7,"Jane Doe"],"team_id":false,"product_id":90}`
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	assert.Equal(t, "S00042", rec.Name.String())
	assert.Equal(t, "", rec.Note.String())
	assert.Equal(t, Many2one{ID: 7, Name: "Jane Doe"}, rec.Partner)
	assert.False(t, rec.Team.IsSet())
	assert.Equal(t, int64(90), rec.Product.ID)
}

func TestOdooValuesRejectGarbage(t *testing.T) {
	var s OdooString
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &s))
	var m Many2one
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &m))
}
