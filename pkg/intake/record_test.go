package intake

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{name: "valid address", email: "client@example.fr"},
		{name: "surrounding whitespace is tolerated", email: "  client@example.fr  "},
		{name: "missing", email: "", wantErr: ErrEmailRequired},
		{name: "blank", email: "   ", wantErr: ErrEmailRequired},
		{name: "not an address", email: "not-an-email", wantErr: ErrEmailInvalid},
		{name: "display name form is rejected", email: "Client <client@example.fr>", wantErr: ErrEmailInvalid},
		{name: "header injection is rejected", email: "client@example.fr\r\nBcc: x@example.fr", wantErr: ErrEmailInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Record{Email: tt.email}.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, "email", vErr.Field)
		})
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, Placeholder, Text(nil))
	assert.Equal(t, Placeholder, Text(strPtr("")))
	assert.Equal(t, Placeholder, Text(strPtr(" \t ")))
	assert.Equal(t, "12 rue des Écoles", Text(strPtr(" 12 rue des Écoles ")))
}

func TestItems(t *testing.T) {
	assert.Empty(t, Items(nil))
	assert.Equal(t, []string{"Cuisine", "Salon"}, Items([]string{"Cuisine", " ", "Salon "}))
}

func TestRecord_PlansRequested(t *testing.T) {
	assert.False(t, Record{}.PlansRequested(), "unset counts as not requested")
	assert.False(t, Record{WantsPlans: boolPtr(false)}.PlansRequested())
	assert.True(t, Record{WantsPlans: boolPtr(true)}.PlansRequested())
}

func TestRecord_DecodeTriState(t *testing.T) {
	var unset, null, yes Record
	require.NoError(t, json.Unmarshal([]byte(`{"email":"a@b.fr"}`), &unset))
	require.NoError(t, json.Unmarshal([]byte(`{"email":"a@b.fr","wantsPlans":null}`), &null))
	require.NoError(t, json.Unmarshal([]byte(`{"email":"a@b.fr","wantsPlans":true,"files":[{},{"name":"plan.pdf"},"x"]}`), &yes))

	assert.Nil(t, unset.WantsPlans)
	assert.Nil(t, null.WantsPlans)
	require.NotNil(t, yes.WantsPlans)
	assert.True(t, yes.PlansRequested())
	assert.Equal(t, 3, yes.FileCount())
}

func TestRecord_Fingerprint(t *testing.T) {
	base := Record{
		Address: strPtr("1 place du Marché"),
		Rooms:   []string{"Cuisine", "Salon"},
		Email:   "client@example.fr",
	}

	t.Run("stable for equivalent records", func(t *testing.T) {
		same := base
		same.Email = " CLIENT@example.fr "
		same.Rooms = []string{"Cuisine", "", "Salon"}
		assert.Equal(t, base.Fingerprint(), same.Fingerprint())
	})

	t.Run("absent and empty optional fields match", func(t *testing.T) {
		a := Record{Email: "client@example.fr"}
		b := Record{Email: "client@example.fr", Notes: strPtr(""), Tension: strPtr(" ")}
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("differs when content differs", func(t *testing.T) {
		other := base
		other.Rooms = []string{"Salon", "Cuisine"}
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())

		other = base
		other.Email = "someone@example.fr"
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
	})
}
