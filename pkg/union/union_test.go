package union

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type optionA struct {
	Alpha string `json:"alpha"`
}

type optionB struct {
	Beta int `json:"beta"`
}

type testUnion struct {
	A      *optionA `union:"type,a" json:"-"`
	B      *optionB `union:"type,b" json:"-"`
	Common string   `json:"common,omitempty"`
}

func TestUnmarshal(t *testing.T) {
	var u testUnion
	require.NoError(t, Unmarshal([]byte(`{"type": "a", "alpha": "x", "common": "c"}`), &u))
	require.NotNil(t, u.A)
	require.Nil(t, u.B)
	require.Equal(t, "x", u.A.Alpha)

	require.NoError(t, Unmarshal([]byte(`{"type": "b", "beta": 3}`), &u))
	require.Nil(t, u.A)
	require.Equal(t, 3, u.B.Beta)
}

func TestUnmarshalErrors(t *testing.T) {
	var u testUnion
	require.ErrorContains(t, Unmarshal([]byte(`{"type": "c"}`), &u), "unexpected type: c")
	require.ErrorContains(t, Unmarshal([]byte(`{"type": 1}`), &u), "type must be a string")
	require.ErrorContains(t,
		Unmarshal([]byte(`{"type": "a", "beta": 1}`), &u), `unknown field "beta"`)
	require.Error(t, Unmarshal([]byte(`[]`), &u))
}

func TestMarshal(t *testing.T) {
	out, err := Marshal(testUnion{B: &optionB{Beta: 2}})
	require.NoError(t, err)
	require.JSONEq(t, `{"type": "b", "beta": 2}`, string(out))

	out, err = Marshal(&testUnion{A: &optionA{Alpha: "x"}, Common: "c"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type": "a", "alpha": "x", "common": "c"}`, string(out))
}
